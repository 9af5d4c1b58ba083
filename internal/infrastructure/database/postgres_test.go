package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/relata/internal/infrastructure/config"
)

func TestPostgres_CloseNilDB(t *testing.T) {
	pg := &Postgres{DB: nil}
	assert.NoError(t, pg.Close())
}

func TestNewPostgres_InvalidConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     99999,
		User:     "invalid",
		Password: "invalid",
		Database: "invalid",
		SSLMode:  "disable",
	}

	pg, err := NewPostgres(cfg)
	if err == nil && pg != nil {
		pg.Close()
	}
	assert.Error(t, err)
}

func TestSelectQuery(t *testing.T) {
	assert.Equal(t, `SELECT * FROM "users"`, selectQuery("users", ""))
	assert.Equal(t, `SELECT * FROM "tasks" ORDER BY "id"`, selectQuery("tasks", "id"))
	assert.Equal(t, `SELECT * FROM "odd""name"`, selectQuery(`odd"name`, ""))
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("JST", 9*3600))

	assert.Equal(t, "abc", normalizeValue([]byte("abc")))
	assert.Equal(t, int64(7), normalizeValue(int64(7)))
	assert.Equal(t, ts.UTC(), normalizeValue(ts))
	assert.Equal(t, true, normalizeValue(true))
}

func TestRefresher_Dispatch(t *testing.T) {
	var changed []string
	r := NewRefresher("", "relata_changed", func(table string) {
		changed = append(changed, table)
	}, nil)

	r.dispatch(&pq.Notification{Channel: "relata_changed", Extra: "tasks"})
	r.dispatch(nil)

	assert.Equal(t, []string{"tasks"}, changed)
}

func TestRefresher_ReloadsAllOnReconnectOnly(t *testing.T) {
	changed := make(chan string, 4)
	r := NewRefresher("", "relata_changed", func(table string) {
		changed <- table
	}, nil)

	notify := make(chan *pq.Notification)
	done := make(chan struct{})
	go func() {
		r.handleNotifications(notify, func() error { return nil })
		close(done)
	}()

	notify <- &pq.Notification{Extra: "users"}
	assert.Equal(t, "users", <-changed)

	r.handleEvent(pq.ListenerEventConnected, nil)
	r.handleEvent(pq.ListenerEventDisconnected, errors.New("connection reset"))
	r.handleEvent(pq.ListenerEventReconnected, nil)
	assert.Equal(t, AllTables, <-changed)

	// A closed notify channel ends the loop without a reload
	close(notify)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after notify was closed")
	}

	assert.Empty(t, changed)
}

func TestRefresher_StopEndsLoop(t *testing.T) {
	calls := 0
	r := NewRefresher("", "relata_changed", func(string) { calls++ }, nil)

	done := make(chan struct{})
	go func() {
		r.handleNotifications(make(chan *pq.Notification), func() error { return nil })
		close(done)
	}()

	require.NoError(t, r.Stop())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after Stop")
	}
	assert.Equal(t, 0, calls)
}

func TestRefresher_StopIsIdempotent(t *testing.T) {
	r := NewRefresher("", "relata_changed", func(string) {}, nil)
	assert.NoError(t, r.Stop())
	assert.NoError(t, r.Stop())
}

func TestPostgres_LoadTableIntegration(t *testing.T) {
	// Requires a running database with a populated users table
	t.Skip("Integration test - requires running database")

	pg, err := NewPostgres(&config.DatabaseConfig{
		Host:     "localhost",
		Port:     25432,
		User:     "relata",
		Password: "relata_test_password",
		Database: "relata_test",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	defer pg.Close()

	records, err := pg.LoadTable(context.Background(), "users", "id")
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}
