package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bromanko/michael/internal/config"
	"github.com/bromanko/michael/internal/database"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/repository"
)

// fakeCalDAVServer serves the minimal PROPFIND/REPORT exchange the sync
// pipeline drives, returning a different single VEVENT payload each time
// FetchEvents is called so a test can observe ReplaceAllForSource swap out
// the stale row for the fresh one.
type fakeCalDAVServer struct {
	reportCount   int
	propfindCount int
}

func (f *fakeCalDAVServer) handler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "PROPFIND":
		f.propfindCount++
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/</D:href>
    <D:propstat><D:prop>
      <D:current-user-principal><D:href>/principal/</D:href></D:current-user-principal>
    </D:prop></D:propstat>
  </D:response>
</D:multistatus>`)
			return
		}
		if r.URL.Path == "/principal/" {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/principal/</D:href>
    <D:propstat><D:prop>
      <C:calendar-home-set><D:href>/home/</D:href></C:calendar-home-set>
    </D:prop></D:propstat>
  </D:response>
</D:multistatus>`)
			return
		}
		if r.URL.Path == "/home/" {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/home/personal/</D:href>
    <D:propstat><D:prop>
      <D:resourcetype><D:collection/><C:calendar/></D:resourcetype>
      <C:supported-calendar-component-set><C:comp name="VEVENT"/></C:supported-calendar-component-set>
    </D:prop></D:propstat>
  </D:response>
</D:multistatus>`)
			return
		}
		http.NotFound(w, r)
	case "REPORT":
		f.reportCount++
		uid := "event-round-1"
		summary := "First sync event"
		if f.reportCount > 1 {
			uid = "event-round-2"
			summary = "Second sync event"
		}
		// One day ahead of the wall clock, so the event falls inside both
		// the scheduled and the manual sync windows.
		evStart := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
		ics := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\n" +
			"UID:" + uid + "\r\nSUMMARY:" + summary + "\r\n" +
			"DTSTART:" + evStart.Format("20060102T150405Z") + "\r\n" +
			"DTEND:" + evStart.Add(time.Hour).Format("20060102T150405Z") + "\r\n" +
			"END:VEVENT\r\nEND:VCALENDAR\r\n"

		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/home/personal/event1.ics</D:href>
    <D:propstat><D:prop>
      <C:calendar-data>%s</C:calendar-data>
    </D:prop></D:propstat>
  </D:response>
</D:multistatus>`, ics)
	default:
		http.NotFound(w, r)
	}
}

func setupSyncTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	cfg := config.DatabaseConfig{Path: ":memory:", MigrationsPath: "../../migrations"}
	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, cfg.MigrationsPath); err != nil {
		t.Fatalf("database.Migrate: %v", err)
	}
	return repository.New(db)
}

func TestSync_ReplacesStaleEventsAtomically(t *testing.T) {
	fake := &fakeCalDAVServer{}
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer server.Close()

	repos := setupSyncTestRepos(t)
	cfg := ProviderConfig{
		Provider: models.CalendarProviderFastmail,
		BaseURL:  server.URL + "/",
		Creds:    Credentials{Username: "user", Password: "pass"},
	}

	svc := NewSyncService(repos, time.UTC, []ProviderConfig{cfg})
	id := SourceID(cfg.Provider, cfg.BaseURL)

	// First sync is scheduled (manual=false): no CalendarHomeURL cached
	// yet, so discovery runs.
	if err := svc.sync(context.Background(), id, cfg, false); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	events, err := repos.Events.RangeQuery(context.Background(), 0, time.Now().Add(100*365*24*time.Hour).Unix())
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if len(events) != 1 || events[0].UID != "event-round-1" {
		t.Fatalf("expected 1 event from round 1, got %+v", events)
	}

	source, err := repos.Calendars.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if source == nil || source.CalendarHomeURL == nil || *source.CalendarHomeURL == "" {
		t.Fatalf("expected calendar home URL cached after first sync, got %+v", source)
	}
	propfindAfterFirst := fake.propfindCount

	// Second sync is manual (SyncNow): CalendarHomeURL is now cached, so
	// discovery must be skipped entirely.
	if err := svc.sync(context.Background(), id, cfg, true); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if fake.propfindCount != propfindAfterFirst {
		t.Errorf("expected no additional PROPFIND calls on second sync, went from %d to %d", propfindAfterFirst, fake.propfindCount)
	}

	events, err = repos.Events.RangeQuery(context.Background(), 0, time.Now().Add(100*365*24*time.Hour).Unix())
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if len(events) != 1 || events[0].UID != "event-round-2" {
		t.Fatalf("expected the stale round-1 event replaced by round-2, got %+v", events)
	}

	source, err = repos.Calendars.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if source == nil || source.LastSyncResult != "ok" {
		t.Errorf("expected sync status ok, got %+v", source)
	}

	history, err := repos.History.ListLatest(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("ListLatest: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 history entries after 2 syncs, got %d", len(history))
	}
}
