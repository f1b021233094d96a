// Command safestep-agent is the field worker's offline-capable CLI. All
// mutations are applied to the local mirror and queued durably; the queue
// is replayed against the server whenever connectivity allows.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/tbechet/safestep/internal/client"
	"github.com/tbechet/safestep/internal/config"
	"github.com/tbechet/safestep/internal/model"
)

const usage = `Usage: safestep-agent <command> [flags]

Commands:
  login    authenticate against the server and store the token
  list     show the local inventory mirror
  add      record a new equipment item
  update   change an item's fields
  delete   retire an item
  sync     push the pending queue and refresh the mirror
  status   show connectivity, queue depth and last sync time
  watch    keep probing connectivity and sync on reconnect

Environment: SAFESTEP_SERVER_URL, SAFESTEP_AGENT_DB, SAFESTEP_PROBE_INTERVAL
(a .env file is read when present).
`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.LoadAgent()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer app.db.Close()

	ctx := context.Background()

	var cmdErr error
	switch os.Args[1] {
	case "login":
		cmdErr = app.login(ctx, os.Args[2:])
	case "list":
		cmdErr = app.list(ctx)
	case "add":
		cmdErr = app.add(ctx, os.Args[2:])
	case "update":
		cmdErr = app.update(ctx, os.Args[2:])
	case "delete":
		cmdErr = app.remove(ctx, os.Args[2:])
	case "sync":
		cmdErr = app.sync(ctx)
	case "status":
		cmdErr = app.status(ctx)
	case "watch":
		cmdErr = app.watch(ctx)
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

// app wires the offline core together for one invocation.
type app struct {
	cfg        *config.Agent
	db         *sql.DB
	api        *client.APIClient
	reconciler *client.Reconciler
	monitor    *client.Monitor
	writer     *client.Writer
}

func newApp(cfg *config.Agent) (*app, error) {
	db, err := client.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	token, err := client.GetMeta(ctx, db, "token")
	if err != nil {
		db.Close()
		return nil, err
	}
	deviceID, err := client.GetMeta(ctx, db, "device_id")
	if err != nil {
		db.Close()
		return nil, err
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := client.SetMeta(ctx, db, "device_id", deviceID); err != nil {
			db.Close()
			return nil, err
		}
	}

	api := client.NewAPIClient(cfg.ServerURL, token)
	reconciler := &client.Reconciler{DB: db, API: api, DeviceID: deviceID}
	monitor := &client.Monitor{Probe: api.Healthy, Drainer: reconciler}
	writer := &client.Writer{DB: db, Drainer: reconciler, Online: monitor.Online}

	return &app{cfg: cfg, db: db, api: api, reconciler: reconciler, monitor: monitor, writer: writer}, nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	if *email == "" || *password == "" {
		return fmt.Errorf("login requires -email and -password")
	}

	token, err := a.api.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	if err := client.SetMeta(ctx, a.db, "token", token); err != nil {
		return err
	}
	a.api.Token = token
	a.monitor.SetOnline(ctx, true)

	fmt.Println("Logged in. Fetching inventory...")
	if err := a.reconciler.Refresh(ctx); err != nil {
		fmt.Println("Inventory fetch failed; run 'safestep-agent sync' when online.")
	}
	return nil
}

func (a *app) list(ctx context.Context) error {
	items, err := client.ListItems(ctx, a.db)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No items. Run 'safestep-agent sync' or add one with 'add'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAG\tCATEGORY\tSTATUS\tQTY\tAVAIL\tLAST CHECK\tSYNC")
	for _, item := range items {
		state := "synced"
		if item.IsLocalOnly {
			state = "pending"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			item.ID, item.TagRef, item.Category, item.Status,
			item.Quantity, item.Available, item.LastCheck, state)
	}
	return w.Flush()
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	tag := fs.String("tag", "", "equipment tag reference")
	category := fs.String("category", model.CategoryOther, "category")
	status := fs.String("status", model.StatusCompliant, "status")
	siteID := fs.Int64("site", 0, "site id (0 for none)")
	quantity := fs.Int("quantity", 1, "total quantity")
	available := fs.Int("available", -1, "available quantity (default: quantity)")
	fs.Parse(args)

	if *tag == "" {
		return fmt.Errorf("add requires -tag")
	}
	if !model.ValidCategory(*category) {
		return fmt.Errorf("invalid category %q", *category)
	}
	if !model.ValidStatus(*status) {
		return fmt.Errorf("invalid status %q", *status)
	}
	if *available < 0 {
		*available = *quantity
	}
	if *available > *quantity {
		return fmt.Errorf("available cannot exceed quantity")
	}

	id, err := client.NextProvisionalID(ctx, a.db)
	if err != nil {
		return err
	}

	item := model.Item{
		ID:          id,
		TagRef:      *tag,
		Category:    *category,
		Status:      *status,
		Quantity:    *quantity,
		Available:   *available,
		LastCheck:   time.Now().UTC().Format(time.DateOnly),
		UpdatedAt:   time.Now().UTC(),
		IsLocalOnly: true,
	}
	if *siteID > 0 {
		item.SiteID = siteID
	}
	if err := client.PutItem(ctx, a.db, item); err != nil {
		return err
	}

	payload := model.ItemPayload{
		ID:        id,
		TagRef:    tag,
		Category:  category,
		Status:    status,
		Quantity:  quantity,
		Available: available,
	}
	if *siteID > 0 {
		payload.SiteID = siteID
	}

	a.probe(ctx)
	if _, err := a.writer.Enqueue(ctx, model.ActionCreate, model.EntityItem, payload); err != nil {
		return err
	}

	fmt.Printf("Item %s recorded (provisional id %d).\n", *tag, id)
	return nil
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	id := fs.Int64("id", 0, "item id")
	tag := fs.String("tag", "", "equipment tag reference")
	category := fs.String("category", "", "category")
	status := fs.String("status", "", "status")
	siteID := fs.Int64("site", 0, "site id")
	quantity := fs.Int("quantity", 0, "total quantity")
	available := fs.Int("available", -1, "available quantity")
	fs.Parse(args)

	if *id == 0 {
		return fmt.Errorf("update requires -id")
	}

	item, err := client.GetItem(ctx, a.db, *id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %d not found", *id)
	}

	payload := model.ItemPayload{ID: *id}
	if *tag != "" {
		payload.TagRef = tag
		item.TagRef = *tag
	}
	if *category != "" {
		if !model.ValidCategory(*category) {
			return fmt.Errorf("invalid category %q", *category)
		}
		payload.Category = category
		item.Category = *category
	}
	if *status != "" {
		if !model.ValidStatus(*status) {
			return fmt.Errorf("invalid status %q", *status)
		}
		payload.Status = status
		item.Status = *status
		item.LastCheck = time.Now().UTC().Format(time.DateOnly)
	}
	if *siteID > 0 {
		payload.SiteID = siteID
		item.SiteID = siteID
	}
	if *quantity > 0 {
		payload.Quantity = quantity
		item.Quantity = *quantity
	}
	if *available >= 0 {
		payload.Available = available
		item.Available = *available
	}
	if item.Available > item.Quantity {
		return fmt.Errorf("available cannot exceed quantity")
	}

	item.UpdatedAt = time.Now().UTC()
	if err := client.PutItem(ctx, a.db, *item); err != nil {
		return err
	}

	a.probe(ctx)
	if _, err := a.writer.Enqueue(ctx, model.ActionUpdate, model.EntityItem, payload); err != nil {
		return err
	}

	fmt.Printf("Item %d updated.\n", *id)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "item id")
	fs.Parse(args)

	if *id == 0 {
		return fmt.Errorf("delete requires -id")
	}

	if err := client.DeleteItem(ctx, a.db, *id); err != nil {
		return err
	}

	a.probe(ctx)
	if _, err := a.writer.Enqueue(ctx, model.ActionDelete, model.EntityItem, model.ItemPayload{ID: *id}); err != nil {
		return err
	}

	fmt.Printf("Item %d deleted.\n", *id)
	return nil
}

func (a *app) sync(ctx context.Context) error {
	if !a.api.Healthy(ctx) {
		return fmt.Errorf("server unreachable, queue retained")
	}
	a.monitor.SetOnline(ctx, true)
	if err := a.reconciler.TryDrain(ctx); err != nil {
		return err
	}
	// An explicit sync always refreshes, even with nothing queued.
	if err := a.reconciler.Refresh(ctx); err != nil {
		return err
	}
	return a.status(ctx)
}

func (a *app) status(ctx context.Context) error {
	pending, err := client.QueueLen(ctx, a.db)
	if err != nil {
		return err
	}
	lastSync, err := client.GetMeta(ctx, a.db, "last_sync")
	if err != nil {
		return err
	}
	if lastSync == "" {
		lastSync = "never"
	}

	state := "offline"
	if a.api.Healthy(ctx) {
		state = "online"
	}

	fmt.Printf("Server:    %s (%s)\n", a.cfg.ServerURL, state)
	fmt.Printf("Pending:   %d queued mutation(s)\n", pending)
	fmt.Printf("Last sync: %s\n", lastSync)
	return nil
}

func (a *app) watch(ctx context.Context) error {
	interval, err := time.ParseDuration(a.cfg.Interval)
	if err != nil {
		return fmt.Errorf("parsing probe interval: %w", err)
	}

	fmt.Printf("Watching connectivity every %s. Ctrl-C to stop.\n", interval)
	a.monitor.Run(ctx, interval)
	return nil
}

// probe refreshes the monitor's connectivity state so an enqueue while
// online triggers an immediate drain.
func (a *app) probe(ctx context.Context) {
	a.monitor.SetOnline(ctx, a.api.Healthy(ctx))
}
