package httpapi

import (
	"net"
	"net/http"
	"strings"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/hostsession"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

// MemberResolver identifies the member who passed the first factor.
// Returning an error marked with goMFA.ErrMemberNotFound yields a 401.
type MemberResolver interface {
	ResolveMember(r *http.Request) (goMFA.Member, error)
}

// MemberResolverFunc adapts a function to MemberResolver.
type MemberResolverFunc func(r *http.Request) (goMFA.Member, error)

func (f MemberResolverFunc) ResolveMember(r *http.Request) (goMFA.Member, error) {
	return f(r)
}

// HeaderMemberResolver trusts an upstream proxy to put the member id in
// idHeader and, optionally, the email in emailHeader.
func HeaderMemberResolver(idHeader, emailHeader string) MemberResolver {
	return MemberResolverFunc(func(r *http.Request) (goMFA.Member, error) {
		id := strings.TrimSpace(r.Header.Get(idHeader))
		if id == "" {
			return goMFA.Member{}, errors.Wrapf(goMFA.ErrMemberNotFound, "missing %s header", idHeader)
		}
		m := goMFA.Member{ID: id}
		if emailHeader != "" {
			m.Email = strings.TrimSpace(r.Header.Get(emailHeader))
		}
		return m, nil
	})
}

// SessionProvider returns the host session the flow store is kept in. It
// may set cookies on w.
type SessionProvider interface {
	Session(w http.ResponseWriter, r *http.Request) (store.Session, error)
}

// SessionProviderFunc adapts a function to SessionProvider.
type SessionProviderFunc func(w http.ResponseWriter, r *http.Request) (store.Session, error)

func (f SessionProviderFunc) Session(w http.ResponseWriter, r *http.Request) (store.Session, error) {
	return f(w, r)
}

// ManagerSessions serves host sessions from a cookie-keyed Redis manager.
func ManagerSessions(m *hostsession.Manager) SessionProvider {
	return SessionProviderFunc(func(w http.ResponseWriter, r *http.Request) (store.Session, error) {
		s, err := m.Session(w, r)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// RequestContext copies the client address and User-Agent into the request
// context for engine logs and notifications.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := goMFA.WithClientIP(r.Context(), host)
		ctx = goMFA.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
