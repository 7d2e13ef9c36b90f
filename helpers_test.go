package goMFA

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/hostsession"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/methods/backupcodes"
	"github.com/MrEthical07/goMFA/methods/basicmath"
	"github.com/MrEthical07/goMFA/notify"
	"github.com/MrEthical07/goMFA/password"
	"github.com/MrEthical07/goMFA/records"
	"github.com/MrEthical07/goMFA/registry"
	"github.com/MrEthical07/goMFA/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testEnv struct {
	engine *Engine
	repo   *records.Memory
	sess   *hostsession.Memory
	events *notify.ChannelHandler
	redis  *miniredis.Miniredis
}

func testCatalogue(t *testing.T) registry.Catalogue {
	t.Helper()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return registry.Catalogue{
		basicmath.URLSegment: func() (method.Method, error) {
			return basicmath.New(basicmath.Config{}), nil
		},
		backupcodes.URLSegment: func() (method.Method, error) {
			m, err := backupcodes.New(hasher, backupcodes.Config{Count: 3})
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

func newTestEnv(t *testing.T, mutate func(*Config), extra ...method.Method) *testEnv {
	t.Helper()
	return newWrappedTestEnv(t, mutate, nil, extra...)
}

// newWrappedTestEnv builds the engine over wrap(env.repo) when wrap is set.
func newWrappedTestEnv(t *testing.T, mutate func(*Config), wrap func(*records.Memory) records.Repository, extra ...method.Method) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig()
	cfg.Methods = []string{basicmath.URLSegment, backupcodes.URLSegment}
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		repo:   records.NewMemory(),
		sess:   hostsession.NewMemory(),
		events: notify.NewChannelHandler(32),
		redis:  mr,
	}
	var repo records.Repository = env.repo
	if wrap != nil {
		repo = wrap(env.repo)
	}
	engine, err := New().
		WithConfig(cfg).
		WithCatalogue(testCatalogue(t)).
		WithMethods(extra...).
		WithRepository(repo).
		WithRedis(client).
		WithNotificationHandlers(env.events).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func testMember() Member {
	return Member{ID: "member-1", Email: "member@example.com", Name: "Member One"}
}

// mathAnswer returns the JSON body answering a basic-math challenge.
func mathAnswer(t *testing.T, props method.Props, offset int) []byte {
	t.Helper()
	numbers, ok := props["numbers"].([]int)
	if !ok || len(numbers) == 0 {
		t.Fatalf("expected numbers in props, got %#v", props)
	}
	sum := offset
	for _, n := range numbers {
		sum += n
	}
	return []byte(`{"number":` + strconv.Itoa(sum) + `}`)
}

// registerMath drives a full basic-math registration.
func registerMath(t *testing.T, env *testEnv, member Member) method.Result {
	t.Helper()
	ctx := context.Background()
	start, err := env.engine.StartRegistration(ctx, env.sess, member, basicmath.URLSegment)
	if err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}
	res, err := env.engine.CompleteRegistration(ctx, env.sess, member, basicmath.URLSegment, mathAnswer(t, start.Props, 0))
	if err != nil {
		t.Fatalf("CompleteRegistration failed: %v", err)
	}
	if !res.Successful {
		t.Fatalf("expected registration to succeed, got %q", res.Message)
	}
	return res
}

// loginMath answers a basic-math login challenge correctly.
func loginMath(t *testing.T, env *testEnv, member Member) LoginOutcome {
	t.Helper()
	ctx := context.Background()
	start, err := env.engine.StartLogin(ctx, env.sess, member, basicmath.URLSegment)
	if err != nil {
		t.Fatalf("StartLogin failed: %v", err)
	}
	out, err := env.engine.CompleteLogin(ctx, env.sess, member, basicmath.URLSegment, mathAnswer(t, start.Props, 0))
	if err != nil {
		t.Fatalf("CompleteLogin failed: %v", err)
	}
	if !out.Result.Successful {
		t.Fatalf("expected login to succeed, got %q", out.Result.Message)
	}
	return out
}

// registerBackup drives a backup-codes registration and returns the codes.
func registerBackup(t *testing.T, env *testEnv, member Member) []string {
	t.Helper()
	ctx := context.Background()
	start, err := env.engine.StartRegistration(ctx, env.sess, member, backupcodes.URLSegment)
	if err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}
	codes, ok := start.Props["codes"].([]string)
	if !ok || len(codes) == 0 {
		t.Fatalf("expected codes in props, got %#v", start.Props)
	}
	res, err := env.engine.CompleteRegistration(ctx, env.sess, member, backupcodes.URLSegment, []byte(`{}`))
	if err != nil {
		t.Fatalf("CompleteRegistration failed: %v", err)
	}
	if !res.Successful {
		t.Fatalf("expected backup registration to succeed, got %q", res.Message)
	}
	return codes
}

func loadStore(t *testing.T, env *testEnv) *store.Store {
	t.Helper()
	s, err := store.Load(context.Background(), env.sess, store.DefaultKey)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func nextEvent(t *testing.T, env *testEnv) notify.Event {
	t.Helper()
	select {
	case ev := <-env.events.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return notify.Event{}
	}
}

func seedRecord(t *testing.T, env *testEnv, memberID, segment string, data []byte) {
	t.Helper()
	err := env.repo.Create(context.Background(), &method.RegisteredMethod{
		ID:        segment + "-" + memberID,
		MemberID:  memberID,
		Method:    segment,
		Data:      data,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("seed record failed: %v", err)
	}
}
