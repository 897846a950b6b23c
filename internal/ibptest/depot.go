// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ibptest implements an in-memory depot speaking the IBP wire
// protocol, for tests.
package ibptest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the ibptest errs class
var Error = errs.Class("ibptest")

// Entry is an allocation held by the depot.
type Entry struct {
	Key         string
	ReadKey     string
	WriteKey    string
	ManageKey   string
	ReadCount   int
	WriteCount  int
	MaxSize     int64
	Duration    int64
	Reliability int
	Type        int
	Data        []byte
}

// Depot is a fake depot listening on a local port.
type Depot struct {
	log      *zap.Logger
	listener net.Listener
	wg       sync.WaitGroup

	// ID is embedded in every capability handed out.
	ID string

	mu       sync.Mutex
	status   string
	password string
	next     int
	entries  map[string]*Entry
	failures map[int]int
	hang     map[int]bool
	commands []string
}

// New starts a depot on 127.0.0.1 with a random port.
func New(log *zap.Logger) (*Depot, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, Error.Wrap(err)
	}

	depot := &Depot{
		log:      log,
		listener: listener,
		ID:       "0",
		status:   "1048576 1024 0 0 86400",
		password: "ibp",
		entries:  map[string]*Entry{},
		failures: map[int]int{},
		hang:     map[int]bool{},
	}

	depot.wg.Add(1)
	go depot.serve()
	return depot, nil
}

// Host returns the listening host.
func (depot *Depot) Host() string { return depot.listener.Addr().(*net.TCPAddr).IP.String() }

// Port returns the listening port.
func (depot *Depot) Port() int { return depot.listener.Addr().(*net.TCPAddr).Port }

// Addr returns host:port.
func (depot *Depot) Addr() string { return depot.listener.Addr().String() }

// Close stops the depot and waits for connections to finish.
func (depot *Depot) Close() error {
	err := depot.listener.Close()
	depot.wg.Wait()
	return Error.Wrap(err)
}

// SetPassword changes the password status inquiries must carry.
func (depot *Depot) SetPassword(password string) {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	depot.password = password
}

// SetStatus replaces the response to status inquiries.
func (depot *Depot) SetStatus(status string) {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	depot.status = status
}

// Capability formats a capability token for an entry.
func (depot *Depot) Capability(entry *Entry, capType string) string {
	wrm := entry.ReadKey
	switch capType {
	case "WRITE":
		wrm = entry.WriteKey
	case "MANAGE":
		wrm = entry.ManageKey
	}
	return fmt.Sprintf("ibp://%s/%s#%s/%s/%s", depot.Addr(), depot.ID, entry.Key, wrm, capType)
}

// Add registers a new allocation and returns it.
func (depot *Depot) Add(size int64, duration int64) *Entry {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	return depot.add(size, duration)
}

func (depot *Depot) add(size int64, duration int64) *Entry {
	depot.next++
	entry := &Entry{
		Key:         "k" + strconv.Itoa(depot.next),
		ReadKey:     "r" + strconv.Itoa(depot.next),
		WriteKey:    "w" + strconv.Itoa(depot.next),
		ManageKey:   "m" + strconv.Itoa(depot.next),
		ReadCount:   1,
		WriteCount:  1,
		MaxSize:     size,
		Duration:    duration,
		Reliability: 2,
		Type:        1,
	}
	depot.entries[entry.Key] = entry
	return entry
}

// Entry returns the entry for key, nil when unknown.
func (depot *Depot) Entry(key string) *Entry {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	return depot.entries[depot.id(key)]
}

// Drop forgets an allocation, further commands on it fail with -4.
func (depot *Depot) Drop(key string) {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	delete(depot.entries, depot.id(key))
}

// Fail makes every request of command answer with code.
func (depot *Depot) Fail(command int, code int) {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	depot.failures[command] = code
}

// Hang makes every request of command go unanswered.
func (depot *Depot) Hang(command int) {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	depot.hang[command] = true
}

// Commands returns the command lines received so far.
func (depot *Depot) Commands() []string {
	depot.mu.Lock()
	defer depot.mu.Unlock()
	return append([]string(nil), depot.commands...)
}

// id strips the depot prefix of a capability key.
func (depot *Depot) id(key string) string {
	if i := strings.IndexByte(key, '#'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func (depot *Depot) serve() {
	defer depot.wg.Done()
	for {
		conn, err := depot.listener.Accept()
		if err != nil {
			return
		}
		depot.wg.Add(1)
		go func() {
			defer depot.wg.Done()
			defer func() { _ = conn.Close() }()
			if err := depot.handle(conn); err != nil && !errors.Is(err, io.EOF) {
				depot.log.Debug("connection failed", zap.Error(err))
			}
		}()
	}
}

func (depot *Depot) handle(conn net.Conn) error {
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return reply(conn, "-25")
	}
	command, err := strconv.Atoi(fields[1])
	if err != nil {
		return reply(conn, "-25")
	}

	depot.mu.Lock()
	depot.commands = append(depot.commands, line)
	code, failing := depot.failures[command]
	hanging := depot.hang[command]
	status := depot.status
	password := depot.password
	depot.mu.Unlock()

	if hanging {
		// wait for the client to give up
		_, _ = io.Copy(io.Discard, reader)
		return nil
	}
	if failing {
		return reply(conn, strconv.Itoa(code))
	}

	args := fields[2:]
	switch command {
	case 4:
		// ST_INQ password timeout
		if len(args) < 2 || args[1] != password {
			return reply(conn, "-29")
		}
		return reply(conn, status)
	case 1:
		return depot.allocate(conn, args)
	case 2:
		return depot.store(conn, reader, args)
	case 8:
		return depot.load(conn, args)
	case 9:
		return depot.manage(conn, args)
	case 5:
		return depot.send(conn, args)
	}
	return reply(conn, "-43")
}

func reply(conn net.Conn, line string) error {
	_, err := io.WriteString(conn, line+"\n")
	return err
}

// allocate: reliability type duration size timeout
func (depot *Depot) allocate(conn net.Conn, args []string) error {
	if len(args) < 5 {
		return reply(conn, "-30")
	}
	duration, err1 := strconv.ParseInt(args[2], 10, 64)
	size, err2 := strconv.ParseInt(args[3], 10, 64)
	if err1 != nil || err2 != nil {
		return reply(conn, "-30")
	}

	depot.mu.Lock()
	entry := depot.add(size, duration)
	depot.mu.Unlock()

	return reply(conn, strings.Join([]string{"0",
		depot.Capability(entry, "READ"),
		depot.Capability(entry, "WRITE"),
		depot.Capability(entry, "MANAGE"),
	}, " "))
}

// lookup returns the entry for key when wrm matches one of want.
func (depot *Depot) lookup(key, wrm string, want func(*Entry) string) (*Entry, string) {
	depot.mu.Lock()
	defer depot.mu.Unlock()

	entry, ok := depot.entries[depot.id(key)]
	if !ok {
		return nil, "-4"
	}
	if want(entry) != wrm {
		return nil, "-12"
	}
	return entry, ""
}

// store: key wrmKey size timeout, then the payload
func (depot *Depot) store(conn net.Conn, reader *bufio.Reader, args []string) error {
	if len(args) < 4 {
		return reply(conn, "-30")
	}
	entry, code := depot.lookup(args[0], args[1], func(e *Entry) string { return e.WriteKey })
	if entry == nil {
		return reply(conn, code)
	}
	size, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || size > entry.MaxSize {
		return reply(conn, "-19")
	}
	if err := reply(conn, "0"); err != nil {
		return err
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return err
	}

	depot.mu.Lock()
	entry.Data = data
	depot.mu.Unlock()
	return reply(conn, "0")
}

// load: key wrmKey offset length timeout
func (depot *Depot) load(conn net.Conn, args []string) error {
	if len(args) < 5 {
		return reply(conn, "-30")
	}
	entry, code := depot.lookup(args[0], args[1], func(e *Entry) string { return e.ReadKey })
	if entry == nil {
		return reply(conn, code)
	}
	offset, err1 := strconv.ParseInt(args[2], 10, 64)
	length, err2 := strconv.ParseInt(args[3], 10, 64)

	depot.mu.Lock()
	data := entry.Data
	depot.mu.Unlock()

	if err1 != nil || err2 != nil || offset < 0 || offset+length > int64(len(data)) {
		return reply(conn, "-36")
	}
	if err := reply(conn, "0 "+strconv.FormatInt(length, 10)); err != nil {
		return err
	}
	_, err := conn.Write(data[offset : offset+length])
	return err
}

// manage: key wrmKey mode capType maxSize duration reliability timeout
func (depot *Depot) manage(conn net.Conn, args []string) error {
	if len(args) < 8 {
		return reply(conn, "-30")
	}
	entry, code := depot.lookup(args[0], args[1], func(e *Entry) string { return e.ManageKey })
	if entry == nil {
		return reply(conn, code)
	}

	depot.mu.Lock()
	defer depot.mu.Unlock()

	switch args[2] {
	case "40":
		return reply(conn, fmt.Sprintf("0 %d %d %d %d %d %d %d",
			entry.ReadCount, entry.WriteCount, len(entry.Data), entry.MaxSize,
			entry.Duration, entry.Reliability, entry.Type))
	case "41":
		if args[3] == "1" {
			entry.ReadCount++
		} else {
			entry.WriteCount++
		}
	case "42":
		if args[3] == "1" {
			entry.ReadCount--
		} else {
			entry.WriteCount--
		}
		if entry.ReadCount <= 0 {
			delete(depot.entries, entry.Key)
		}
	case "43":
		duration, err := strconv.ParseInt(args[5], 10, 64)
		if err != nil {
			return reply(conn, "-30")
		}
		entry.Duration = duration
	default:
		return reply(conn, "-43")
	}
	return reply(conn, "0")
}

// send: srcKey destCap srcWrmKey offset size timeout timeout timeout
func (depot *Depot) send(conn net.Conn, args []string) error {
	if len(args) < 5 {
		return reply(conn, "-30")
	}
	entry, code := depot.lookup(args[0], args[2], func(e *Entry) string { return e.ReadKey })
	if entry == nil {
		return reply(conn, code)
	}
	return reply(conn, "0")
}
