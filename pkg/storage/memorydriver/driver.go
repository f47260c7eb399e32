package memorydriver

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DriverName is the label the driver is registered under with database/sql.
const DriverName = "vending-memory"

func init() {
	sql.Register(DriverName, &Driver{})
}

// itemRecord keeps the raw persisted representation of a product.
type itemRecord struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// denominationRecord tracks how many units of one value sit in the reserve.
type denominationRecord struct {
	Value    int64 `json:"value"`
	Quantity int64 `json:"quantity"`
}

// snapshot is written to disk after each committed mutation so the driver survives restarts.
type snapshot struct {
	Items         []itemRecord         `json:"items"`
	Denominations []denominationRecord `json:"denominations"`
}

// storeCommand models every operation executed against the in-memory store.
type storeCommand struct {
	action       string
	item         itemRecord
	denomination denominationRecord
	key          string
	reply        chan storeResult
}

// storeResult transfers either a record list, an affected-row count, or an error.
type storeResult struct {
	affected      int64
	items         []itemRecord
	denominations []denominationRecord
	snap          snapshot
	err           error
}

// state is the mutable table set; the index maps a lower-cased item name to its slot.
type state struct {
	items         []itemRecord
	index         map[string]int
	denominations []denominationRecord
}

func (st *state) clone() *state {
	out := &state{
		items:         make([]itemRecord, len(st.items)),
		index:         make(map[string]int, len(st.index)),
		denominations: make([]denominationRecord, len(st.denominations)),
	}
	copy(out.items, st.items)
	copy(out.denominations, st.denominations)
	for k, v := range st.index {
		out.index[k] = v
	}
	return out
}

func (st *state) snapshot() snapshot {
	c := st.clone()
	return snapshot{Items: c.items, Denominations: c.denominations}
}

// store keeps the tables guarded by a dedicated goroutine.
type store struct {
	commands        chan storeCommand
	closed          chan struct{}
	persistRequests chan snapshot
	persistDone     chan struct{}
	current         *state
	// backup holds the pre-transaction tables while a transaction is open.
	backup       *state
	snapshotPath string
}

// newStore creates a store and spins the goroutines so every access flows through a channel.
func newStore(path string) (*store, error) {
	loaded, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	s := &store{
		commands:        make(chan storeCommand, 32),
		closed:          make(chan struct{}),
		persistRequests: make(chan snapshot, 1),
		persistDone:     make(chan struct{}),
		current:         &state{index: make(map[string]int)},
		snapshotPath:    path,
	}
	if loaded != nil {
		s.current.items = loaded.Items
		for i, item := range loaded.Items {
			s.current.index[strings.ToLower(item.Name)] = i
		}
		s.current.denominations = loaded.Denominations
		sortDenominations(s.current.denominations)
	}
	go s.loop()
	go s.persistenceLoop()
	return s, nil
}

// loop serializes every mutation and read request to keep the state safe without mutexes.
func (s *store) loop() {
	for {
		select {
		case cmd := <-s.commands:
			cmd.reply <- s.apply(cmd)
		case <-s.closed:
			return
		}
	}
}

// apply executes one command against the current tables.
func (s *store) apply(cmd storeCommand) storeResult {
	st := s.current
	switch cmd.action {
	case "insertItem":
		key := strings.ToLower(cmd.item.Name)
		if _, exists := st.index[key]; exists {
			return storeResult{err: fmt.Errorf("UNIQUE constraint failed: items.name (%s)", cmd.item.Name)}
		}
		if cmd.item.Price <= 0 || cmd.item.Quantity < 0 {
			return storeResult{err: errors.New("CHECK constraint failed: items")}
		}
		st.index[key] = len(st.items)
		st.items = append(st.items, cmd.item)
		s.mutated()
		return storeResult{affected: 1}
	case "listItems":
		return storeResult{items: st.clone().items}
	case "findItem":
		pos, ok := st.index[strings.ToLower(cmd.key)]
		if !ok {
			return storeResult{}
		}
		return storeResult{items: []itemRecord{st.items[pos]}}
	case "updateItem":
		pos, ok := st.index[strings.ToLower(cmd.item.Name)]
		if !ok {
			return storeResult{}
		}
		if cmd.item.Quantity < 0 {
			return storeResult{err: errors.New("CHECK constraint failed: items")}
		}
		st.items[pos].Quantity = cmd.item.Quantity
		s.mutated()
		return storeResult{affected: 1}
	case "insertDenomination":
		if findDenomination(st.denominations, cmd.denomination.Value) >= 0 {
			return storeResult{err: fmt.Errorf("UNIQUE constraint failed: denominations.value (%d)", cmd.denomination.Value)}
		}
		if cmd.denomination.Quantity < 0 {
			return storeResult{err: errors.New("CHECK constraint failed: denominations")}
		}
		st.denominations = append(st.denominations, cmd.denomination)
		sortDenominations(st.denominations)
		s.mutated()
		return storeResult{affected: 1}
	case "listDenominations":
		return storeResult{denominations: st.clone().denominations}
	case "findDenomination":
		pos := findDenomination(st.denominations, cmd.denomination.Value)
		if pos < 0 {
			return storeResult{}
		}
		return storeResult{denominations: []denominationRecord{st.denominations[pos]}}
	case "updateDenomination":
		pos := findDenomination(st.denominations, cmd.denomination.Value)
		if pos < 0 {
			return storeResult{}
		}
		if cmd.denomination.Quantity < 0 {
			return storeResult{err: errors.New("CHECK constraint failed: denominations")}
		}
		st.denominations[pos].Quantity = cmd.denomination.Quantity
		s.mutated()
		return storeResult{affected: 1}
	case "begin":
		if s.backup != nil {
			return storeResult{err: errors.New("a transaction is already in progress")}
		}
		s.backup = st.clone()
		return storeResult{}
	case "commit":
		if s.backup == nil {
			return storeResult{err: errors.New("no transaction in progress")}
		}
		s.backup = nil
		s.queuePersist()
		return storeResult{}
	case "rollback":
		if s.backup == nil {
			return storeResult{err: errors.New("no transaction in progress")}
		}
		s.current = s.backup
		s.backup = nil
		return storeResult{}
	case "snapshot":
		return storeResult{snap: st.snapshot()}
	case "noop":
		return storeResult{}
	default:
		return storeResult{err: fmt.Errorf("unsupported action %s", cmd.action)}
	}
}

// mutated persists immediately outside transactions; commits persist the whole batch.
func (s *store) mutated() {
	if s.backup == nil {
		s.queuePersist()
	}
}

// persistenceLoop writes snapshots asynchronously so the main loop stays responsive.
func (s *store) persistenceLoop() {
	defer close(s.persistDone)
	for {
		select {
		case snap := <-s.persistRequests:
			_ = writeSnapshot(s.snapshotPath, snap)
		case <-s.closed:
			return
		}
	}
}

// queuePersist sends the current snapshot to the background writer without blocking.
func (s *store) queuePersist() {
	if s.snapshotPath == "" {
		return
	}
	snap := s.current.snapshot()
	select {
	case s.persistRequests <- snap:
	default:
		select {
		case <-s.persistRequests:
		default:
		}
		s.persistRequests <- snap
	}
}

// send enqueues a command and waits for the reply, bounded so a wedged store cannot hang callers.
func (s *store) send(cmd storeCommand) storeResult {
	cmd.reply = make(chan storeResult, 1)
	select {
	case s.commands <- cmd:
	case <-s.closed:
		return storeResult{err: errors.New("memory store is closed")}
	case <-time.After(2 * time.Second):
		return storeResult{err: errors.New("timed out while enqueuing command")}
	}
	select {
	case res := <-cmd.reply:
		return res
	case <-s.closed:
		return storeResult{err: errors.New("memory store is closed")}
	}
}

// shutdown writes a final snapshot synchronously and stops both goroutines.
func (s *store) shutdown() error {
	res := s.send(storeCommand{action: "snapshot"})
	close(s.closed)
	<-s.persistDone
	if res.err != nil {
		return res.err
	}
	if s.snapshotPath == "" {
		return nil
	}
	return writeSnapshot(s.snapshotPath, res.snap)
}

var (
	registryMu sync.Mutex
	registry   = map[string]*store{}
)

// storeFor returns the store bound to a data source name, loading its snapshot on first use.
func storeFor(name string) (*store, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if s, ok := registry[name]; ok {
		return s, nil
	}
	s, err := newStore(name)
	if err != nil {
		return nil, err
	}
	registry[name] = s
	return s, nil
}

// Close flushes the store behind name to disk and forgets it. Reopening the same name reloads
// the snapshot.
func Close(name string) error {
	registryMu.Lock()
	s, ok := registry[name]
	delete(registry, name)
	registryMu.Unlock()
	if !ok {
		return nil
	}
	return s.shutdown()
}

// Driver wires the stores into the database/sql world. The data source name is the snapshot
// path; connections opened with the same name share one store.
type Driver struct{}

// Open creates a connection that forwards calls to the shared store.
func (d *Driver) Open(name string) (driver.Conn, error) {
	s, err := storeFor(name)
	if err != nil {
		return nil, err
	}
	return &conn{store: s}, nil
}

// conn represents a lightweight connection object; every operation still travels through channels.
type conn struct {
	store *store
}

// Prepare builds a statement object for the small set of supported queries.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	trimmed := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	switch {
	case strings.HasPrefix(trimmed, "insert into items"):
		return &stmt{store: c.store, query: "insertItem"}, nil
	case strings.HasPrefix(trimmed, "insert into denominations"):
		return &stmt{store: c.store, query: "insertDenomination"}, nil
	case strings.HasPrefix(trimmed, "update items"):
		return &stmt{store: c.store, query: "updateItem"}, nil
	case strings.HasPrefix(trimmed, "update denominations"):
		return &stmt{store: c.store, query: "updateDenomination"}, nil
	case strings.HasPrefix(trimmed, "select") && strings.Contains(trimmed, "from items where"):
		return &stmt{store: c.store, query: "findItem"}, nil
	case strings.HasPrefix(trimmed, "select") && strings.Contains(trimmed, "from items"):
		return &stmt{store: c.store, query: "listItems"}, nil
	case strings.HasPrefix(trimmed, "select") && strings.Contains(trimmed, "from denominations where"):
		return &stmt{store: c.store, query: "findDenomination"}, nil
	case strings.HasPrefix(trimmed, "select") && strings.Contains(trimmed, "from denominations"):
		return &stmt{store: c.store, query: "listDenominations"}, nil
	case strings.HasPrefix(trimmed, "create table"):
		return &stmt{store: c.store, query: "noop"}, nil
	default:
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
}

// Close is a no-op because the shared store owns the lifecycle.
func (c *conn) Close() error { return nil }

// Begin snapshots the tables so Rollback can restore them. Only one transaction may be open
// per store at a time.
func (c *conn) Begin() (driver.Tx, error) {
	if res := c.store.send(storeCommand{action: "begin"}); res.err != nil {
		return nil, res.err
	}
	return &tx{store: c.store}, nil
}

// tx ends the store-wide transaction opened by Begin.
type tx struct {
	store *store
}

func (t *tx) Commit() error   { return t.store.send(storeCommand{action: "commit"}).err }
func (t *tx) Rollback() error { return t.store.send(storeCommand{action: "rollback"}).err }

// stmt forwards Exec and Query to the store with the data shaped for each case.
type stmt struct {
	store *store
	query string
}

// Close is a no-op since statements do not maintain resources in this simple driver.
func (s *stmt) Close() error { return nil }

// NumInput matches the driver.Stmt contract; -1 allows database/sql to accept any argument count.
func (s *stmt) NumInput() int { return -1 }

// Exec handles the mutation statements supported by the driver.
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	if s.query == "noop" {
		return execResult{}, nil
	}
	cmd := storeCommand{action: s.query}

	switch s.query {
	case "insertItem":
		if len(args) < 3 {
			return nil, fmt.Errorf("expected 3 arguments, got %d", len(args))
		}
		cmd.item = itemRecord{Name: toString(args[0]), Price: toInt64(args[1]), Quantity: toInt64(args[2])}
	case "updateItem":
		if len(args) < 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		cmd.item = itemRecord{Quantity: toInt64(args[0]), Name: toString(args[1])}
	case "insertDenomination":
		if len(args) < 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		cmd.denomination = denominationRecord{Value: toInt64(args[0]), Quantity: toInt64(args[1])}
	case "updateDenomination":
		if len(args) < 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		cmd.denomination = denominationRecord{Quantity: toInt64(args[0]), Value: toInt64(args[1])}
	default:
		return nil, fmt.Errorf("unsupported exec action %s", s.query)
	}

	res := s.store.send(cmd)
	if res.err != nil {
		return nil, res.err
	}
	return execResult{affected: res.affected}, nil
}

// Query fetches the stored records and converts them into driver.Rows.
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	cmd := storeCommand{action: s.query}
	switch s.query {
	case "findItem":
		if len(args) < 1 {
			return nil, errors.New("expected item name")
		}
		cmd.key = toString(args[0])
	case "findDenomination":
		if len(args) < 1 {
			return nil, errors.New("expected denomination value")
		}
		cmd.denomination.Value = toInt64(args[0])
	case "listItems", "listDenominations":
	default:
		return nil, fmt.Errorf("unsupported query action %s", s.query)
	}

	res := s.store.send(cmd)
	if res.err != nil {
		return nil, res.err
	}
	switch s.query {
	case "findItem", "listItems":
		return &rows{kind: "items", items: res.items}, nil
	default:
		return &rows{kind: "denominations", denominations: res.denominations}, nil
	}
}

// execResult fulfills the driver.Result interface with the number of touched rows.
type execResult struct {
	affected int64
}

func (r execResult) LastInsertId() (int64, error) {
	return 0, errors.New("LastInsertId is not supported by the memory driver")
}
func (r execResult) RowsAffected() (int64, error) { return r.affected, nil }

// rows iterates through the stored records while serving Columns and Next calls.
type rows struct {
	kind          string
	items         []itemRecord
	denominations []denominationRecord
	index         int
}

// Columns aligns with the SELECT projection used by the repository.
func (r *rows) Columns() []string {
	if r.kind == "denominations" {
		return []string{"value", "quantity"}
	}
	return []string{"name", "price", "quantity"}
}

// Close is a no-op for the lightweight row iterator.
func (r *rows) Close() error { return nil }

// Next moves through the records and writes the column data into the provided slice.
func (r *rows) Next(dest []driver.Value) error {
	if r.kind == "denominations" {
		if r.index >= len(r.denominations) {
			return io.EOF
		}
		record := r.denominations[r.index]
		r.index++
		dest[0] = record.Value
		dest[1] = record.Quantity
		return nil
	}
	if r.index >= len(r.items) {
		return io.EOF
	}
	record := r.items[r.index]
	r.index++
	dest[0] = record.Name
	dest[1] = record.Price
	dest[2] = record.Quantity
	return nil
}

// findDenomination returns the slot holding value or -1.
func findDenomination(list []denominationRecord, value int64) int {
	for i := range list {
		if list[i].Value == value {
			return i
		}
	}
	return -1
}

// sortDenominations keeps the reserve ordered by value, highest first.
func sortDenominations(list []denominationRecord) {
	sort.Slice(list, func(i, j int) bool { return list[i].Value > list[j].Value })
}

// toString converts driver.Value into a usable string.
func toString(value driver.Value) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toInt64 converts driver.Value to int64 for prices, counts and denomination values.
func toInt64(value driver.Value) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if v == "" {
			return 0
		}
		var parsed int64
		fmt.Sscanf(v, "%d", &parsed)
		return parsed
	default:
		return 0
	}
}

// readSnapshot loads the persisted JSON file if it exists.
func readSnapshot(path string) (*snapshot, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// writeSnapshot persists the current state to disk.
func writeSnapshot(path string, snap snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(temp, path)
}
