// Command dikuclient-core is the headless demo binary: it wires the
// connection manager, the protocol decoders, and the automation engine
// together against a live MUD server with no rendering layer, per §1's
// "engine without a UI" boundary. Output is newline text on stdout;
// input is read as one command per stdin line.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anicolao/dikuclient/internal/aliases"
	"github.com/anicolao/dikuclient/internal/client"
	"github.com/anicolao/dikuclient/internal/config"
	"github.com/anicolao/dikuclient/internal/contextqueue"
	"github.com/anicolao/dikuclient/internal/gmcp"
	"github.com/anicolao/dikuclient/internal/history"
	"github.com/anicolao/dikuclient/internal/msdp"
	"github.com/anicolao/dikuclient/internal/pipeline"
	"github.com/anicolao/dikuclient/internal/rooms"
	"github.com/anicolao/dikuclient/internal/status"
	"github.com/anicolao/dikuclient/internal/tabs"
	"github.com/anicolao/dikuclient/internal/tickfeed"
	"github.com/anicolao/dikuclient/internal/triggers"
	"github.com/anicolao/dikuclient/internal/variables"
)

var (
	host          = flag.String("host", "", "MUD server hostname")
	port          = flag.Int("port", 4000, "MUD server port")
	accountName   = flag.String("account", "", "Use saved account")
	saveAccount   = flag.Bool("save-account", false, "Save account credentials")
	listAccounts  = flag.Bool("list-accounts", false, "List saved accounts")
	deleteAccount = flag.String("delete-account", "", "Delete saved account")
	tickInterval  = flag.Int("tick-interval", 75, "Seconds between MUD ticks, for the tick feed's countdown estimate")
	tabMaxLines   = flag.Int("tab-max-lines", 500, "Scrollback bound for each tab")
	queueMaxSize  = flag.Int("queue-max-size", 50, "Bound on the contextual command queue")
)

func main() {
	flag.Parse()

	doc, err := config.LoadDocument()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *listAccounts {
		handleListAccounts(doc)
		return
	}

	if *deleteAccount != "" {
		handleDeleteAccount(doc, *deleteAccount)
		return
	}

	finalHost, finalPort, err := resolveTarget(doc)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if finalHost == "" {
		return // user cancelled the interactive menu
	}

	run(doc, finalHost, finalPort)
}

// resolveTarget mirrors the teacher CLI's account-selection flow
// (saved account / explicit host / interactive menu), trimmed of the
// TUI-specific prompts and targeting config.Document instead of the
// standalone accounts file.
func resolveTarget(doc *config.Document) (string, int, error) {
	if *accountName != "" {
		account, err := doc.GetAccount(*accountName)
		if err != nil {
			return "", 0, err
		}
		fmt.Printf("Using saved account: %s\n", *accountName)
		return account.Host, account.Port, nil
	}

	if *host != "" {
		if *saveAccount {
			account, err := promptForAccountDetails(*host, *port)
			if err != nil {
				return "", 0, err
			}
			if err := doc.AddAccount(*account); err != nil {
				return "", 0, fmt.Errorf("save account: %w", err)
			}
			fmt.Printf("Account '%s' saved successfully.\n", account.Name)
		}
		return *host, *port, nil
	}

	account, err := selectOrCreateAccount(doc)
	if err != nil {
		return "", 0, err
	}
	if account == nil {
		return "", 0, nil
	}
	return account.Host, account.Port, nil
}

func handleListAccounts(doc *config.Document) {
	accounts := doc.ListAccounts()
	if len(accounts) == 0 {
		fmt.Println("No saved accounts.")
		return
	}

	fmt.Println("Saved accounts:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s (%s:%d)\n", i+1, account.Name, account.Host, account.Port)
	}
}

func handleDeleteAccount(doc *config.Document, name string) {
	if err := doc.DeleteAccount(name); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Account '%s' deleted successfully.\n", name)
}

func promptForAccountDetails(host string, port int) (*config.Account, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Enter account name: ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}

	return &config.Account{
		Name: strings.TrimSpace(name),
		Host: host,
		Port: port,
	}, nil
}

func selectOrCreateAccount(doc *config.Document) (*config.Account, error) {
	accounts := doc.ListAccounts()

	fmt.Println("\nDikuMUD core client - Account Selection")
	fmt.Println("========================================")

	if len(accounts) > 0 {
		fmt.Println("\nSaved accounts:")
		for i, account := range accounts {
			fmt.Printf("  %d. %s (%s:%d)\n", i+1, account.Name, account.Host, account.Port)
		}
		fmt.Printf("  %d. Connect to new server\n", len(accounts)+1)
		fmt.Printf("  %d. Exit\n", len(accounts)+2)
	} else {
		fmt.Println("\nNo saved accounts found.")
		fmt.Println("  1. Connect to new server")
		fmt.Println("  2. Exit")
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nSelect option: ")
	input, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	choice, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return nil, fmt.Errorf("invalid choice")
	}

	newConnIdx := len(accounts) + 1
	exitIdx := len(accounts) + 2
	if len(accounts) == 0 {
		newConnIdx, exitIdx = 1, 2
	}

	switch {
	case len(accounts) > 0 && choice >= 1 && choice <= len(accounts):
		return &accounts[choice-1], nil
	case choice == newConnIdx:
		return createNewAccount(doc, reader)
	case choice == exitIdx:
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid choice")
	}
}

func createNewAccount(doc *config.Document, reader *bufio.Reader) (*config.Account, error) {
	fmt.Print("\nEnter hostname: ")
	host, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	host = strings.TrimSpace(host)

	fmt.Print("Enter port (default 4000): ")
	portStr, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	portStr = strings.TrimSpace(portStr)
	port := 4000
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
	}

	fmt.Print("Save this account? (y/n): ")
	save, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	save = strings.TrimSpace(strings.ToLower(save))

	account := config.Account{Host: host, Port: port}
	if save == "y" || save == "yes" {
		fmt.Print("Enter account name: ")
		name, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		account.Name = strings.TrimSpace(name)

		if err := doc.AddAccount(account); err != nil {
			return nil, fmt.Errorf("save account: %w", err)
		}
		fmt.Printf("Account '%s' saved.\n", account.Name)
	}
	return &account, nil
}

// run wires every component named in §4 together and drives the
// connection until stdin closes, an error arrives, or a signal fires.
func run(doc *config.Document, host string, port int) {
	triggerMgr := doc.TriggerManager()
	aliasMgr := doc.AliasManager()
	tabRouter, err := doc.TabRouter(*tabMaxLines)
	if err != nil {
		fmt.Printf("Error rebuilding tabs: %v\n", err)
		os.Exit(1)
	}
	ctxQueue, err := doc.ContextQueue(*queueMaxSize)
	if err != nil {
		fmt.Printf("Error rebuilding context queue: %v\n", err)
		os.Exit(1)
	}

	varStore := variables.New()
	for name, value := range doc.Variables {
		varStore.Set(name, variables.String(value), variables.SourceUser)
	}

	cmdHistory, err := history.Load()
	if err != nil {
		fmt.Printf("Error loading command history: %v\n", err)
		os.Exit(1)
	}

	roomTracker := rooms.NewTracker()
	tickFeed := tickfeed.NewFeed(*tickInterval)
	hub := status.NewHub()

	hub.Triggers.Publish(triggerIDs(triggerMgr))
	hub.Aliases.Publish(aliasIDs(aliasMgr))

	fmt.Printf("Connecting to %s:%d...\n", host, port)

	conn, err := client.NewConnection(host, port, "xterm-256color", hub.ConnectionState)
	if err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}

	var lastZone string

	publishTabs := func() {
		ids := []string{tabs.MainTabID, tabs.LogsTabID}
		for _, t := range tabRouter.UserTabs() {
			ids = append(ids, t.ID)
		}
		for _, id := range ids {
			t, ok := tabRouter.Tab(id)
			if !ok {
				continue
			}
			hub.TabContent.Publish(status.TabUpdate{TabID: id, Content: t.Content(), Unread: t.Unread()})
		}
	}
	publishContextQueue := func() {
		entries := ctxQueue.Entries()
		commands := make([]string, len(entries))
		for i, e := range entries {
			commands[i] = e.Command
		}
		hub.ContextQueue.Publish(commands)
	}
	publishVariables := func() {
		hub.Variables.Publish(variablesSnapshot(varStore))
	}

	orch := &pipeline.Orchestrator{
		Triggers:     triggerMgr,
		Aliases:      aliasMgr,
		Tabs:         tabRouter,
		ContextQueue: ctxQueue,
		Variables:    varStore,
		RoomState: func() contextqueue.RoomState {
			room := roomTracker.Current()
			if room == nil {
				return contextqueue.RoomState{}
			}
			return contextqueue.RoomState{RoomID: room.ID, Zone: room.Zone, Tags: room.Tags}
		},
		Send: conn.Send,
		OnSound: func(ev pipeline.SoundEvent) {
			fmt.Printf("[sound: %s]\n", ev.SoundID)
		},
		OnLine:               hub.TextBuffer.Publish,
		OnTabUpdate:          publishTabs,
		OnContextQueueUpdate: publishContextQueue,
	}

	msdpSnapshot := make(map[string]any)
	conn.OnMSDPPayload = func(payload []byte) {
		table := msdp.Parse(payload)
		for key, value := range msdpTableToMap(table) {
			msdpSnapshot[key] = value
		}
		published := make(map[string]any, len(msdpSnapshot))
		for key, value := range msdpSnapshot {
			published[key] = value
		}
		hub.MSDPSnapshot.Publish(published)
		applyMSDPVariables(varStore, table)
		publishVariables()

		if v, ok := table.Get("AREA_NAME"); ok && v.Kind == msdp.KindString {
			if lastZone != "" && v.Str != lastZone {
				ctxQueue.OnZoneChange(v.Str)
				publishContextQueue()
			}
			lastZone = v.Str
		}

		if evt, entered := roomEnterFromMSDP(table, roomTracker); entered {
			ctxQueue.OnRoomEnter(contextqueue.RoomState{RoomID: evt.RoomID, Zone: evt.Zone, Tags: evt.Tags}, time.Now())
			publishContextQueue()
		}
		if v, ok := table.Get("TICK"); ok && v.Kind == msdp.KindString {
			if n, err := strconv.Atoi(v.Str); err == nil {
				tickFeed.Observe(n, time.Now())
			}
		}
	}
	conn.OnGMCPPayload = func(payload []byte) {
		msg := gmcp.Parse(string(payload))
		hub.GMCPSnapshot.Publish(map[string]any{msg.Package: string(msg.Data)})
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	stdinLines := make(chan string)
	go func() {
		defer close(stdinLines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			stdinLines <- scanner.Text()
		}
	}()

	tickTicker := time.NewTicker(time.Second)
	defer tickTicker.Stop()

	for {
		select {
		case chunk, ok := <-conn.Receive():
			if !ok {
				persistAndExit(doc, tabRouter, varStore, cmdHistory, conn, 0)
				return
			}
			fmt.Print(chunk)
			orch.Feed(chunk)

		case line, ok := <-stdinLines:
			if !ok {
				persistAndExit(doc, tabRouter, varStore, cmdHistory, conn, 0)
				return
			}
			cmdHistory.Add(line)
			orch.Outbound(line)
			publishVariables()

		case err, ok := <-conn.Errors():
			if ok && err != nil {
				fmt.Printf("\nConnection error: %v\n", err)
			}
			persistAndExit(doc, tabRouter, varStore, cmdHistory, conn, 1)
			return

		case <-tickTicker.C:
			now := time.Now()
			for _, cmd := range tickFeed.DueCommands(now) {
				orch.Outbound(cmd)
			}
			publishVariables()
			ctxQueue.SweepFixedTime(now)
			publishContextQueue()

		case <-interrupt:
			fmt.Println("\nDisconnecting...")
			persistAndExit(doc, tabRouter, varStore, cmdHistory, conn, 0)
			return
		}
	}
}

func persistAndExit(doc *config.Document, tabRouter *tabs.Router, varStore *variables.Store, cmdHistory *history.Manager, conn *client.Connection, code int) {
	doc.SetTabs(tabRouter)
	doc.Variables = varStore.BySource(variables.SourceUser)
	if err := doc.Save(); err != nil {
		fmt.Printf("Warning: failed to save config: %v\n", err)
	}
	if err := cmdHistory.Save(); err != nil {
		fmt.Printf("Warning: failed to save command history: %v\n", err)
	}
	_ = conn.Close()
	os.Exit(code)
}

// roomEnterFromMSDP reads the MSDP reporting variables conventionally
// named ROOM_NAME / ROOM_DESC / ROOM_EXITS / AREA_NAME and feeds them to
// the tracker, per §6's mapper-collaborator boundary.
func roomEnterFromMSDP(table *msdp.Table, tracker *rooms.Tracker) (rooms.RoomEnterEvent, bool) {
	nameVal, ok := table.Get("ROOM_NAME")
	if !ok || nameVal.Kind != msdp.KindString {
		return rooms.RoomEnterEvent{}, false
	}
	var description string
	if v, ok := table.Get("ROOM_DESC"); ok && v.Kind == msdp.KindString {
		description = v.Str
	}
	var zone string
	if v, ok := table.Get("AREA_NAME"); ok && v.Kind == msdp.KindString {
		zone = v.Str
	}

	var exits []string
	if v, ok := table.Get("ROOM_EXITS"); ok && v.Kind == msdp.KindTable {
		exits = v.Table.Keys()
	}

	return tracker.Enter(nameVal.Str, description, exits, zone, nil)
}

// triggerIDs and aliasIDs snapshot the loaded rule sets for C13's
// Triggers/Aliases streams. The demo binary has no runtime add/remove
// path, so each is published once at startup rather than re-published
// per change.
func triggerIDs(m *triggers.Manager) []string {
	ids := make([]string, len(m.Triggers))
	for i, t := range m.Triggers {
		ids[i] = t.ID
	}
	return ids
}

func aliasIDs(m *aliases.Manager) []string {
	ids := make([]string, len(m.Aliases))
	for i, a := range m.Aliases {
		ids[i] = a.ID
	}
	return ids
}

// variablesSnapshot renders the store's current entries to the plain
// map[string]any shape C13 publishes, per §4.13.
func variablesSnapshot(store *variables.Store) map[string]any {
	out := make(map[string]any)
	for _, name := range store.Names() {
		if v, ok := store.Get(name); ok {
			out[name] = variables.Format(v.Value)
		}
	}
	return out
}

func applyMSDPVariables(store *variables.Store, table *msdp.Table) {
	for _, key := range table.Keys() {
		v, _ := table.Get(key)
		if v.Kind != msdp.KindString {
			continue
		}
		store.Set(key, variables.String(v.Str), variables.SourceMSDP)
	}
}

func msdpTableToMap(table *msdp.Table) map[string]any {
	out := make(map[string]any, table.Len())
	for _, key := range table.Keys() {
		v, _ := table.Get(key)
		out[key] = msdpValueToAny(v)
	}
	return out
}

func msdpValueToAny(v msdp.Value) any {
	switch v.Kind {
	case msdp.KindString:
		return v.Str
	case msdp.KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = msdpValueToAny(item)
		}
		return out
	case msdp.KindTable:
		out := make(map[string]any, v.Table.Len())
		for _, key := range v.Table.Keys() {
			nested, _ := v.Table.Get(key)
			out[key] = msdpValueToAny(nested)
		}
		return out
	default:
		return nil
	}
}
