package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
	"quiz-room-service/internal/infra/postgres"
	infraredis "quiz-room-service/internal/infra/redis"
)

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuizzes(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	// Two services share Redis the way two server instances would.
	newService := func() *app.RoomService {
		quizzes := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)
		store := infraredis.NewSessionStore(redisClient, 5*time.Minute)
		return app.NewRoomService(store, quizzes, infraredis.NewBroker(redisClient), app.Options{})
	}
	hostSide, playerSide := newService(), newService()

	room, err := hostSide.CreateRoom(ctx, "A", "quiz-1", domain.Policy{MaxParticipants: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	events, cancel, err := hostSide.Subscribe(ctx, room.Code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for _, userID := range []string{"B", "C"} {
		if _, err := playerSide.JoinRoom(ctx, room.Code, userID); err != nil {
			t.Fatalf("join %s: %v", userID, err)
		}
	}
	if _, err := playerSide.JoinRoom(ctx, room.Code, "D"); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected room full, got %v", err)
	}
	expectEvent(t, events, domain.EventParticipantJoined)

	if _, err := hostSide.StartRoom(ctx, room.Code, "A"); err != nil {
		t.Fatalf("start: %v", err)
	}
	answers := []struct{ user, question, answer string }{
		{"B", "q1", "o2"},
		{"C", "q1", "o2"},
		{"C", "q2", "o1"},
	}
	for _, a := range answers {
		if _, err := playerSide.SubmitAnswer(ctx, room.Code, a.user, a.question, a.answer); err != nil {
			t.Fatalf("%s answers %s: %v", a.user, a.question, err)
		}
	}
	if _, err := playerSide.SubmitAnswer(ctx, room.Code, "B", "q1", "o1"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}

	result, err := hostSide.EndRoom(ctx, room.Code, "A")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	order := []string{"C", "B", "A"}
	for i, userID := range order {
		if result.Standings[i].UserID != userID || result.Standings[i].Rank != i+1 {
			t.Fatalf("expected %v, got %+v", order, result.Standings)
		}
	}

	state, err := playerSide.GetRoomStatus(ctx, room.Code)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state.Room.Status != domain.RoomCompleted || state.Participants[0].Rank != 3 {
		t.Fatalf("expected ranks visible to other instances, got %+v", state)
	}
}

func expectEvent(t *testing.T, events <-chan domain.Event, typ domain.EventType) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Type == typ {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

// seedQuizzes migrates the schema and loads the built-in quizzes through the seeder.
func seedQuizzes(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var quizzes []domain.Quiz
	for _, quiz := range memory.SampleQuizzes() {
		quizzes = append(quizzes, quiz)
	}
	if err := postgres.NewQuizSeeder(db).Seed(ctx, quizzes); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
