package internaldefs

import (
	goMFA "github.com/MrEthical07/goMFA"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter in output order.
var CounterDefs = []CounterDef{
	{ID: goMFA.MetricRegistrationStarted, Name: "gomfa_registration_started_total", Help: "Issued registration challenges."},
	{ID: goMFA.MetricRegistrationSuccess, Name: "gomfa_registration_success_total", Help: "Completed method registrations."},
	{ID: goMFA.MetricRegistrationFailure, Name: "gomfa_registration_failure_total", Help: "Rejected registration answers."},
	{ID: goMFA.MetricRegistrationSkipped, Name: "gomfa_registration_skipped_total", Help: "Members who skipped registration."},
	{ID: goMFA.MetricLoginStarted, Name: "gomfa_login_started_total", Help: "Issued login challenges."},
	{ID: goMFA.MetricLoginSuccess, Name: "gomfa_login_success_total", Help: "Successful method verifications."},
	{ID: goMFA.MetricLoginFailure, Name: "gomfa_login_failure_total", Help: "Rejected verification answers."},
	{ID: goMFA.MetricLoginFullyVerified, Name: "gomfa_login_fully_verified_total", Help: "Login flows that verified every required factor."},
	{ID: goMFA.MetricVerificationLocked, Name: "gomfa_verification_locked_total", Help: "Requests refused by the verification lockout."},
	{ID: goMFA.MetricInvalidSession, Name: "gomfa_invalid_session_total", Help: "Finish requests without a matching flow."},
	{ID: goMFA.MetricEncodingFailure, Name: "gomfa_encoding_failure_total", Help: "Flow stores that failed to encode or decode."},
	{ID: goMFA.MetricHandlerError, Name: "gomfa_handler_error_total", Help: "Method handler errors hidden from clients."},
	{ID: goMFA.MetricMethodRemoved, Name: "gomfa_method_removed_total", Help: "Removed method registrations."},
	{ID: goMFA.MetricDefaultMethodChanged, Name: "gomfa_default_method_changed_total", Help: "Default method updates."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goMFA.MetricVerifyLatency, Name: "gomfa_verify_latency_seconds", Help: "Latency of login verification."},
}

// NotificationsDroppedName is the counter of notifications discarded by a
// full dispatcher buffer.
const (
	NotificationsDroppedName = "gomfa_notifications_dropped_total"
	NotificationsDroppedHelp = "Notifications dropped due to dispatcher backpressure."
)

// HistogramBounds are the upper bounds in seconds of the engine's latency
// buckets. The last engine bucket is unbounded.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// HistogramBoundSuffix names each engine bucket, including the unbounded
// last one, for exporters that publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}
