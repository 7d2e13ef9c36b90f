package records

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/method"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newRecord(memberID, segment string, created time.Time, data string) *method.RegisteredMethod {
	return &method.RegisteredMethod{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Method:    segment,
		Data:      []byte(data),
		CreatedAt: created,
	}
}

func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()

	ctx := context.Background()
	member := "member-" + uuid.NewString()
	base := time.Unix(1700000000, 0).UTC()

	list, err := repo.List(ctx, member)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}
	if _, err := repo.Get(ctx, member, "totp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Create(ctx, newRecord(member, "totp", base.Add(time.Minute), `{"secret":"A"}`)); err != nil {
		t.Fatalf("Create totp failed: %v", err)
	}
	if err := repo.Create(ctx, newRecord(member, "basic-math", base, "")); err != nil {
		t.Fatalf("Create basic-math failed: %v", err)
	}
	if err := repo.Create(ctx, newRecord(member, "totp", base, `{}`)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := repo.Create(ctx, newRecord(member, "Bad Segment", base, "")); err == nil {
		t.Fatal("expected invalid segment to be rejected")
	}

	list, err = repo.List(ctx, member)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Method != "basic-math" || list[1].Method != "totp" {
		t.Fatalf("expected creation order, got %+v", list)
	}

	got, err := repo.Get(ctx, member, "totp")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != `{"secret":"A"}` || got.MemberID != member {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := repo.UpdateData(ctx, member, "totp", []byte(`{"secret":"B"}`)); err != nil {
		t.Fatalf("UpdateData failed: %v", err)
	}
	got, err = repo.Get(ctx, member, "totp")
	if err != nil || string(got.Data) != `{"secret":"B"}` {
		t.Fatalf("expected updated data, got %+v %v", got, err)
	}
	if err := repo.UpdateData(ctx, member, "backup-codes", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}

	if err := repo.SwapData(ctx, member, "totp", []byte(`{"secret":"A"}`), []byte(`{"secret":"C"}`)); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for stale data, got %v", err)
	}
	if got, _ := repo.Get(ctx, member, "totp"); string(got.Data) != `{"secret":"B"}` {
		t.Fatalf("stale swap must not write, got %q", got.Data)
	}
	if err := repo.SwapData(ctx, member, "totp", []byte(`{"secret":"B"}`), []byte(`{"secret":"C"}`)); err != nil {
		t.Fatalf("SwapData failed: %v", err)
	}
	if got, _ := repo.Get(ctx, member, "totp"); string(got.Data) != `{"secret":"C"}` {
		t.Fatalf("expected swapped data, got %q", got.Data)
	}
	if err := repo.SwapData(ctx, member, "basic-math", nil, []byte(`{}`)); err != nil {
		t.Fatalf("SwapData from empty data failed: %v", err)
	}
	if err := repo.SwapData(ctx, member, "basic-math", nil, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict once data is set, got %v", err)
	}
	if err := repo.UpdateData(ctx, member, "basic-math", nil); err != nil {
		t.Fatalf("UpdateData reset failed: %v", err)
	}
	if err := repo.SwapData(ctx, member, "backup-codes", nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on swap, got %v", err)
	}

	if def, err := repo.DefaultMethod(ctx, member); err != nil || def != "" {
		t.Fatalf("expected no default, got %q %v", def, err)
	}
	if err := repo.SetDefaultMethod(ctx, member, "backup-codes"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unregistered default, got %v", err)
	}
	if err := repo.SetDefaultMethod(ctx, member, "totp"); err != nil {
		t.Fatalf("SetDefaultMethod failed: %v", err)
	}
	if err := repo.SetDefaultMethod(ctx, member, "basic-math"); err != nil {
		t.Fatalf("SetDefaultMethod overwrite failed: %v", err)
	}
	if def, _ := repo.DefaultMethod(ctx, member); def != "basic-math" {
		t.Fatalf("expected basic-math default, got %q", def)
	}

	if err := repo.Delete(ctx, member, "basic-math"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if def, _ := repo.DefaultMethod(ctx, member); def != "" {
		t.Fatalf("expected default cleared with its record, got %q", def)
	}
	if err := repo.Delete(ctx, member, "basic-math"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	if err := repo.SetDefaultMethod(ctx, member, "totp"); err != nil {
		t.Fatalf("SetDefaultMethod failed: %v", err)
	}
	if err := repo.DeleteAll(ctx, member); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	list, err = repo.List(ctx, member)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no records after DeleteAll, got %v %v", list, err)
	}
	if def, _ := repo.DefaultMethod(ctx, member); def != "" {
		t.Fatalf("expected default removed by DeleteAll, got %q", def)
	}
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, NewMemory())
}

func TestRedisRepository(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	runRepositoryContract(t, NewRedis(rdb, "test"))
}

func TestRedisRepositoryCorruptRecord(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := NewRedis(rdb, "test")
	mr.HSet(repo.recordsKey("m1"), "totp", "\x09garbage")

	if _, err := repo.Get(context.Background(), "m1", "totp"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if err := repo.UpdateData(context.Background(), "m1", "totp", nil); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on update, got %v", err)
	}
}

func TestRedisRepositoryBackendFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	if _, err := NewRedis(rdb, "").List(context.Background(), "m1"); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestGormRepositoryPostgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("OpenPostgres failed: %v", err)
	}
	repo := NewGorm(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	runRepositoryContract(t, repo)
}

func TestRecordCodecRoundTrip(t *testing.T) {
	rm := newRecord("member-1", "totp", time.Unix(1700000000, 123).UTC(), `{"secret":"X"}`)
	rm.UpdatedAt = rm.CreatedAt.Add(time.Second)

	encoded, err := encodeRecord(rm)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	decoded, err := decodeRecord(encoded)
	if err != nil {
		t.Fatalf("decodeRecord failed: %v", err)
	}
	if decoded.ID != rm.ID || decoded.MemberID != rm.MemberID || decoded.Method != rm.Method ||
		string(decoded.Data) != string(rm.Data) || !decoded.CreatedAt.Equal(rm.CreatedAt) ||
		!decoded.UpdatedAt.Equal(rm.UpdatedAt) {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, rm)
	}

	if _, err := decodeRecord(encoded[:len(encoded)-1]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for truncated record, got %v", err)
	}
}
