package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/rbright/pilot-availability/internal/config"
	"github.com/rbright/pilot-availability/internal/selector"
	"github.com/rbright/pilot-availability/internal/state"
	"github.com/rbright/pilot-availability/internal/waybar"
	"github.com/spf13/afero"
)

var testNow = time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Send(_ context.Context, summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, summary+": "+body)
	return nil
}

func (n *recordingNotifier) summaries() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func testRuntime(root string) config.Runtime {
	stateDir := filepath.Join(root, "state")
	menuDir := filepath.Join(root, "menus")
	return config.Runtime{
		PilotID:     "pilot-1",
		WeekStart:   time.Monday,
		Location:    time.UTC,
		BadgeLimit:  3,
		Timeout:     5 * time.Second,
		RefreshCron: "*/5 * * * *",
		LogLevel:    "error",
		DataDir:     filepath.Join(root, "data"),
		StateDir:    stateDir,
		MenuDir:     menuDir,
		MenuPath:    filepath.Join(menuDir, "pilot-availability.xml"),
		MonthPath:   filepath.Join(stateDir, "month.json"),
		ViewPath:    filepath.Join(stateDir, "view.json"),
	}
}

func newTestEnv(t *testing.T, fsys afero.Fs, cfg config.Runtime) (*env, *syncBuffer, *recordingNotifier) {
	t.Helper()

	out := &syncBuffer{}
	notes := &recordingNotifier{}
	e := newEnv(cfg, fsys, out)
	e.now = func() time.Time { return testNow }
	e.notifier = notes
	e.pick = func(context.Context, []availability.Blockout) (string, error) {
		t.Fatalf("unexpected selector call")
		return "", nil
	}
	return e, out, notes
}

func mustRun(t *testing.T, e *env, args ...string) {
	t.Helper()
	if err := e.run(context.Background(), args); err != nil {
		t.Fatalf("run %v: %v", args, err)
	}
}

func decodeStatus(t *testing.T, raw string) waybar.Output {
	t.Helper()
	var out waybar.Output
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		t.Fatalf("decode status %q: %v", raw, err)
	}
	return out
}

func readView(t *testing.T, fsys afero.Fs, path string) state.View {
	t.Helper()
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("read view: %v", err)
	}
	var view state.View
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return view
}

func readMonth(t *testing.T, fsys afero.Fs, path string) availability.MonthView {
	t.Helper()
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	var view availability.MonthView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("decode month: %v", err)
	}
	return view
}

func TestParseArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		command string
		wantErr bool
	}{
		{name: "default_status", args: nil, command: "status"},
		{name: "month_with_arg", args: []string{"month", "2025-03"}, command: "month"},
		{name: "month_too_many", args: []string{"month", "2025-03", "x"}, wantErr: true},
		{name: "select_day_missing", args: []string{"select-day"}, wantErr: true},
		{name: "status_extra", args: []string{"status", "now"}, wantErr: true},
		{name: "blockouts_flags", args: []string{"blockouts", "--format", "yaml"}, command: "blockouts"},
		{name: "blockout_missing_action", args: []string{"blockout"}, wantErr: true},
		{name: "blockout_unknown_action", args: []string{"blockout", "purge"}, wantErr: true},
		{name: "blockout_delete", args: []string{"blockout", "delete"}, command: "blockout"},
		{name: "import_missing_path", args: []string{"import-ics"}, wantErr: true},
		{name: "import_bookings", args: []string{"import-bookings", "feed.json"}, command: "import-bookings"},
		{name: "import_bookings_missing_path", args: []string{"import-bookings"}, wantErr: true},
		{name: "unknown", args: []string{"join-next"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			command, _, err := parseArgs(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v", tc.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %v: %v", tc.args, err)
			}
			if command != tc.command {
				t.Fatalf("command mismatch: %q", command)
			}
		})
	}
}

func TestStatus_BlockedToday(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	cfg := testRuntime("/root")
	e, out, notes := newTestEnv(t, fsys, cfg)

	mustRun(t, e, "blockout", "add", "--label", "Annual leave", "--start", "2025-03-12")
	if strings.TrimSpace(out.String()) == "" {
		t.Fatalf("expected created id on stdout")
	}
	out.Reset()

	mustRun(t, e, "status")
	status := decodeStatus(t, out.String())
	if status.Class != "blocked" || status.Text != "Wed 12 blocked" {
		t.Fatalf("status mismatch: %+v", status)
	}

	menu, err := afero.ReadFile(fsys, cfg.MenuPath)
	if err != nil {
		t.Fatalf("read menu: %v", err)
	}
	if !strings.Contains(string(menu), "Annual leave") {
		t.Fatalf("menu missing blockout:\n%s", menu)
	}

	month := readMonth(t, fsys, cfg.MonthPath)
	if len(month.Cells) != 42 {
		t.Fatalf("month cell count mismatch: %d", len(month.Cells))
	}

	if sent := notes.summaries(); len(sent) != 1 || !strings.HasPrefix(sent[0], "Blockout added: Annual leave") {
		t.Fatalf("notification mismatch: %v", sent)
	}
}

func TestStatus_BookingBadgeCapped(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	e, out, _ := newTestEnv(t, fsys, testRuntime("/root"))

	scheduled := testNow.Add(2 * time.Hour)
	bookings := make([]availability.Booking, 0, 5)
	for _, id := range []string{"k1", "k2", "k3", "k4"} {
		bookings = append(bookings, availability.Booking{ID: id, PilotID: "pilot-1", ScheduledDate: &scheduled, Status: availability.BookingAccepted})
	}
	bookings = append(bookings, availability.Booking{ID: "k5", PilotID: "pilot-1", ScheduledDate: &scheduled, Status: availability.BookingPending})
	if err := e.files.SaveBookings(bookings); err != nil {
		t.Fatalf("save bookings: %v", err)
	}

	mustRun(t, e, "status")
	status := decodeStatus(t, out.String())
	if status.Class != "booked" || status.Text != "Wed 12 3+ booked" {
		t.Fatalf("status mismatch: %+v", status)
	}
}

func TestStatus_WithoutPilot(t *testing.T) {
	t.Parallel()

	cfg := testRuntime("/root")
	cfg.PilotID = ""
	e, out, _ := newTestEnv(t, afero.NewMemMapFs(), cfg)

	mustRun(t, e, "status")
	status := decodeStatus(t, out.String())
	if status.Class != waybar.ClassError || !strings.Contains(status.Tooltip, "PILOT_ID") {
		t.Fatalf("status mismatch: %+v", status)
	}

	if err := e.run(context.Background(), []string{"blockouts"}); !errors.Is(err, errNoPilot) {
		t.Fatalf("expected errNoPilot, got %v", err)
	}
}

func TestNavigation_PersistsView(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	cfg := testRuntime("/root")
	e, out, _ := newTestEnv(t, fsys, cfg)

	mustRun(t, e, "next-month")
	mustRun(t, e, "next-month")
	if view := readView(t, fsys, cfg.ViewPath); view.Month != "2025-05" || view.Selected != "2025-05-12" {
		t.Fatalf("view mismatch after next: %+v", view)
	}

	mustRun(t, e, "prev-month")
	if view := readView(t, fsys, cfg.ViewPath); view.Month != "2025-04" {
		t.Fatalf("view mismatch after prev: %+v", view)
	}

	mustRun(t, e, "select-day", "2025-01-31")
	mustRun(t, e, "next-month")
	if view := readView(t, fsys, cfg.ViewPath); view.Month != "2025-02" || view.Selected != "2025-03-03" {
		t.Fatalf("expected dangling selection, got %+v", view)
	}

	mustRun(t, e, "prev-month")
	if view := readView(t, fsys, cfg.ViewPath); view.Month != "2025-01" || view.Selected != "2025-01-31" {
		t.Fatalf("expected day-of-month back on prev, got %+v", view)
	}
	mustRun(t, e, "next-month")

	out.Reset()
	mustRun(t, e, "month", "2025-03")
	grid := out.String()
	if !strings.HasPrefix(grid, "March 2025\nMon Tue Wed Thu Fri Sat Sun\n") {
		t.Fatalf("grid header mismatch:\n%s", grid)
	}
	if view := readView(t, fsys, cfg.ViewPath); view.Month != "2025-03" || view.Selected != "2025-03-03" {
		t.Fatalf("month command should keep the selection: %+v", view)
	}

	if err := e.run(context.Background(), []string{"month", "March"}); err == nil {
		t.Fatalf("expected error for malformed month")
	}
}

func TestBlockout_Lifecycle(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	e, out, _ := newTestEnv(t, fsys, testRuntime("/root"))
	ctx := context.Background()

	mustRun(t, e, "blockout", "add",
		"--label", "Recurrent training",
		"--start", "2025-03-10T09:00",
		"--end", "2025-03-10T17:00",
		"--repeat", "weekly",
		"--until", "2025-03-31",
	)
	id := strings.TrimSpace(out.String())
	if id == "" {
		t.Fatalf("expected created id")
	}

	out.Reset()
	mustRun(t, e, "blockouts", "--format", "yaml")
	listing := out.String()
	for _, expected := range []string{"label: Recurrent training", "recurrence: weekly", "id: " + id} {
		if !strings.Contains(listing, expected) {
			t.Fatalf("yaml listing missing %q:\n%s", expected, listing)
		}
	}

	out.Reset()
	mustRun(t, e, "day", "2025-03-17")
	if detail := out.String(); !strings.Contains(detail, "Mon 17 Mar 2025: blocked") || !strings.Contains(detail, "09:00-17:00 weekly Recurrent training") {
		t.Fatalf("day detail mismatch:\n%s", detail)
	}

	out.Reset()
	mustRun(t, e, "blockout", "edit", id, "--start", "2025-03-11T08:00", "--end", "2025-03-11T10:00")
	out.Reset()
	mustRun(t, e, "blockouts")
	var listed []availability.Blockout
	if err := json.Unmarshal([]byte(out.String()), &listed); err != nil {
		t.Fatalf("decode json listing: %v", err)
	}
	if len(listed) != 1 || listed[0].Recurrence != availability.RecurrenceNone || listed[0].Label != "" {
		t.Fatalf("edit should replace every field: %+v", listed)
	}

	e.pick = func(_ context.Context, blockouts []availability.Blockout) (string, error) {
		if len(blockouts) != 1 {
			t.Fatalf("selector got %d blockouts", len(blockouts))
		}
		return blockouts[0].ID, nil
	}
	mustRun(t, e, "blockout", "delete")

	remaining, err := e.files.List(ctx, "pilot-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected blockout deleted, got %+v", remaining)
	}

	if err := e.run(ctx, []string{"blockout", "delete", id}); !errors.Is(err, availability.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlockout_DeleteOtherPilotRejected(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	e, _, _ := newTestEnv(t, fsys, testRuntime("/root"))

	start := testNow
	other, err := e.files.Create(context.Background(), availability.BlockoutFields{PilotID: "pilot-2", Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := e.run(context.Background(), []string{"blockout", "delete", other.ID}); !errors.Is(err, availability.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlockout_DeleteCancelled(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	e, _, _ := newTestEnv(t, fsys, testRuntime("/root"))
	mustRun(t, e, "blockout", "add", "--start", "2025-03-14")

	e.pick = func(context.Context, []availability.Blockout) (string, error) {
		return "", selector.ErrSelectionCancelled
	}
	mustRun(t, e, "blockout", "delete")

	remaining, err := e.files.List(context.Background(), "pilot-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("cancelled delete removed blockouts: %+v", remaining)
	}
}

func TestParseBlockoutFlags(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEnv(t, afero.NewMemMapFs(), testRuntime("/root"))

	fields, rest, err := e.parseBlockoutFlags("blockout add", []string{"--start", "2025-03-12", "extra"})
	if err != nil {
		t.Fatalf("parse whole day: %v", err)
	}
	if len(rest) != 1 || rest[0] != "extra" {
		t.Fatalf("positional mismatch: %v", rest)
	}
	if !fields.End.Equal(time.Date(2025, 3, 12, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("whole-day end mismatch: %s", fields.End)
	}
	if e.cal.Matches(fields.Blockout("x"), time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("whole-day blockout must not touch the next day")
	}

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing_start", args: []string{"--end", "2025-03-12"}},
		{name: "time_without_end", args: []string{"--start", "2025-03-12T09:00"}},
		{name: "garbled_start", args: []string{"--start", "tomorrow"}},
	}
	for _, tc := range tests {
		if _, _, err := e.parseBlockoutFlags("blockout add", tc.args); !errors.Is(err, availability.ErrInvalidBlockout) {
			t.Fatalf("%s: expected ErrInvalidBlockout, got %v", tc.name, err)
		}
	}

	if _, _, err := e.parseBlockoutFlags("blockout add", []string{"--start", "2025-03-12", "--repeat", "fortnightly"}); err == nil {
		t.Fatalf("expected unknown recurrence error")
	}
	if _, _, err := e.parseBlockoutFlags("blockout add", []string{"--start", "2025-03-12", "--bogus"}); err == nil {
		t.Fatalf("expected unknown flag error")
	}
}

func TestICS_ExportThenImportUpserts(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	e, out, _ := newTestEnv(t, fsys, testRuntime("/root"))

	mustRun(t, e, "blockout", "add", "--label", "Gym", "--start", "2025-03-10T07:00", "--end", "2025-03-10T08:00", "--repeat", "weekdays", "--until", "2025-04-30")
	out.Reset()

	mustRun(t, e, "export-ics", "/exports/feed.ics")
	if got := strings.TrimSpace(out.String()); got != "Exported 1 blockout(s) to /exports/feed.ics" {
		t.Fatalf("export output mismatch: %q", got)
	}
	feed, err := afero.ReadFile(fsys, "/exports/feed.ics")
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if !strings.Contains(string(feed), "BEGIN:VEVENT") {
		t.Fatalf("feed missing event:\n%s", feed)
	}

	out.Reset()
	mustRun(t, e, "import-ics", "/exports/feed.ics")
	if got := strings.TrimSpace(out.String()); got != "Imported 1 blockout(s), skipped 0" {
		t.Fatalf("import output mismatch: %q", got)
	}

	listed, err := e.files.List(context.Background(), "pilot-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Recurrence != availability.Weekdays || listed[0].Label != "Gym" {
		t.Fatalf("re-import should upsert the same blockout: %+v", listed)
	}
}

func TestICS_ReimportForeignFeedUpserts(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	e, out, _ := newTestEnv(t, fsys, testRuntime("/root"))

	feed := func(summary string) string {
		return strings.Join([]string{
			"BEGIN:VCALENDAR",
			"VERSION:2.0",
			"PRODID:-//Google Inc//Google Calendar 70.9054//EN",
			"BEGIN:VEVENT",
			"UID:7kq2c1b6@google.com",
			"DTSTART:20250314T090000Z",
			"DTEND:20250314T120000Z",
			"SUMMARY:" + summary,
			"END:VEVENT",
			"END:VCALENDAR",
			"",
		}, "\r\n")
	}

	if err := afero.WriteFile(fsys, "/imports/google.ics", []byte(feed("Dentist")), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}
	mustRun(t, e, "import-ics", "/imports/google.ics")

	if err := afero.WriteFile(fsys, "/imports/google.ics", []byte(feed("Dentist (moved)")), 0o644); err != nil {
		t.Fatalf("rewrite feed: %v", err)
	}
	out.Reset()
	mustRun(t, e, "import-ics", "/imports/google.ics")
	if got := strings.TrimSpace(out.String()); got != "Imported 1 blockout(s), skipped 0" {
		t.Fatalf("import output mismatch: %q", got)
	}

	listed, err := e.files.List(context.Background(), "pilot-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("re-import duplicated events: %+v", listed)
	}
	if listed[0].SourceUID != "7kq2c1b6@google.com" || listed[0].Label != "Dentist (moved)" {
		t.Fatalf("blockout mismatch: %+v", listed[0])
	}
}

func TestImportBookings(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	e, out, _ := newTestEnv(t, fsys, testRuntime("/root"))

	feed := `[
  {"id": "bk-1", "pilotId": "pilot-1", "customerId": "cust-1", "scheduledDate": "2025-03-12T14:00:00Z", "status": "accepted"},
  {"id": "bk-2", "pilotId": "pilot-1", "customerId": "cust-2", "status": "pending"}
]`
	if err := afero.WriteFile(fsys, "/imports/bookings.json", []byte(feed), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}
	mustRun(t, e, "import-bookings", "/imports/bookings.json")
	if got := strings.TrimSpace(out.String()); got != "Imported 2 booking(s)" {
		t.Fatalf("import output mismatch: %q", got)
	}

	out.Reset()
	mustRun(t, e, "status")
	if status := decodeStatus(t, out.String()); status.Class != "booked" || status.Text != "Wed 12 1 booked" {
		t.Fatalf("status mismatch: %+v", status)
	}

	bad := `[{"id": "bk-3", "pilotId": "pilot-1", "status": "maybe"}]`
	if err := afero.WriteFile(fsys, "/imports/bad.json", []byte(bad), 0o644); err != nil {
		t.Fatalf("write bad feed: %v", err)
	}
	if err := e.run(context.Background(), []string{"import-bookings", "/imports/bad.json"}); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	bookings, err := e.files.ListForUser(context.Background(), "pilot-1", true)
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("rejected feed must not replace bookings: %+v", bookings)
	}
}

func TestBookingTracker(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	tracker := bookingTracker{count: -1}

	if got := tracker.observe(day, 2); got != 0 {
		t.Fatalf("baseline should not announce, got %d", got)
	}
	if got := tracker.observe(day, 3); got != 1 {
		t.Fatalf("expected one new booking, got %d", got)
	}
	if got := tracker.observe(day, 1); got != 0 {
		t.Fatalf("cancellations should not announce, got %d", got)
	}
	if got := tracker.observe(day.AddDate(0, 0, 1), 4); got != 0 {
		t.Fatalf("new day resets the baseline, got %d", got)
	}
}

func TestWatch_RendersOnStartAndDataChange(t *testing.T) {
	t.Parallel()

	cfg := testRuntime(t.TempDir())
	e, out, notes := newTestEnv(t, afero.NewOsFs(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.watch(ctx)
	}()

	waitForLines(t, out, 1)

	scheduled := testNow.Add(time.Hour)
	if err := e.files.SaveBookings([]availability.Booking{
		{ID: "k1", PilotID: "pilot-1", ScheduledDate: &scheduled, Status: availability.BookingAccepted},
	}); err != nil {
		t.Fatalf("save bookings: %v", err)
	}

	waitForLines(t, out, 2)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if last := decodeStatus(t, lines[len(lines)-1]); last.Class != "booked" {
		t.Fatalf("expected booked after data change, got %+v", last)
	}

	found := false
	for _, sent := range notes.summaries() {
		if strings.HasPrefix(sent, "New booking today") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new booking notification, got %v", notes.summaries())
	}
}

func waitForLines(t *testing.T, out *syncBuffer, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Count(out.String(), "\n") >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d status lines, got %q", want, out.String())
}
