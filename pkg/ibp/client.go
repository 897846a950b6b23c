// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/exnode/pkg/allocation"
)

var mon = monkit.Package()

// Config configures the depot client.
type Config struct {
	// Timeout bounds dialing and all I/O of a single call.
	Timeout time.Duration `mapstructure:"timeout"`
	// Password is sent with status inquiries that do not set their own.
	Password string `mapstructure:"password"`
}

// DefaultConfig is the default client configuration.
var DefaultConfig = Config{Timeout: DefaultTimeout, Password: DefaultPassword}

// Client speaks the depot protocol. It holds no connection state: every call
// opens its own connection, so a Client is safe for concurrent use.
type Client struct {
	log    *zap.Logger
	config Config
}

// NewClient creates a depot client.
func NewClient(log *zap.Logger, config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{log: log, config: config}
}

// DepotStatus is the answer to a status inquiry.
type DepotStatus struct {
	Total        int64
	Used         int64
	Volatile     int64
	UsedVolatile int64
	MaxDuration  time.Duration
}

// ProbeStatus describes an allocation as reported by its depot.
type ProbeStatus struct {
	ReadCount   int
	WriteCount  int
	Size        int64
	MaxSize     int64
	Duration    time.Duration
	Reliability Reliability
	Type        StorageType
}

// StatusOptions configures GetStatus.
type StatusOptions struct {
	Password string
	// Timeout is the server side timeout in seconds.
	Timeout int
}

// AllocateOptions configures Allocate.
type AllocateOptions struct {
	Reliability Reliability
	Type        StorageType
	Duration    time.Duration
	Timeout     int
}

// StoreOptions configures Store.
type StoreOptions struct {
	Duration time.Duration
	Timeout  int
}

// LoadOptions configures Load. Zero values read the whole depot range.
type LoadOptions struct {
	Offset  int64
	Length  int64
	Timeout int
}

// ManageOptions configures Manage.
type ManageOptions struct {
	Mode        SubCommand
	CapType     CapCode
	MaxSize     int64
	Duration    time.Duration
	Reliability Reliability
	Timeout     int
}

// SendOptions configures Send. A nil Size sends the whole depot range.
type SendOptions struct {
	Offset   int64
	Size     *int64
	Duration time.Duration
	Timeout  int
}

func orTimeout(timeout int) int {
	if timeout <= 0 {
		return DefaultServerTimeout
	}
	return timeout
}

func orDuration(duration time.Duration) time.Duration {
	if duration <= 0 {
		return DefaultDuration
	}
	return duration
}

func seconds(duration time.Duration) int64 { return int64(duration / time.Second) }

func statusCommand(password string, timeout int) string {
	return format(IBPv031, CmdStatus, int(StatusInquire), password, timeout)
}

func allocateCommand(reliability Reliability, storageType StorageType, duration time.Duration, size int64, timeout int) string {
	return format(IBPv031, CmdAllocate, int(reliability), int(storageType), seconds(duration), size, timeout)
}

func storeCommand(capability *Capability, size int64, timeout int) string {
	return format(IBPv031, CmdStore, capability.Key, capability.WRMKey, size, timeout)
}

func loadCommand(capability *Capability, offset, length int64, timeout int) string {
	return format(IBPv031, CmdLoad, capability.Key, capability.WRMKey, offset, length, timeout)
}

func manageCommand(capability *Capability, opts ManageOptions) string {
	return format(IBPv031, CmdManage, capability.Key, capability.WRMKey, int(opts.Mode), int(opts.CapType),
		opts.MaxSize, seconds(opts.Duration), int(opts.Reliability), opts.Timeout)
}

func sendCommand(source *Capability, destination *Capability, offset, size int64, timeout int) string {
	return format(IBPv040, CmdSend, source.Key, destination.String(), source.WRMKey, offset, size, timeout, timeout, timeout)
}

// format joins version, command and fields with spaces and terminates the line.
func format(version Version, command Command, fields ...interface{}) string {
	var line strings.Builder
	line.WriteString(strconv.Itoa(int(version)))
	line.WriteByte(' ')
	line.WriteString(strconv.Itoa(int(command)))
	for _, field := range fields {
		line.WriteByte(' ')
		switch field := field.(type) {
		case string:
			line.WriteString(field)
		case int:
			line.WriteString(strconv.Itoa(field))
		case int64:
			line.WriteString(strconv.FormatInt(field, 10))
		default:
			panic("unsupported command field")
		}
	}
	line.WriteByte('\n')
	return line.String()
}

// GetStatus queries the status of a depot.
func (client *Client) GetStatus(ctx context.Context, depot allocation.Depot, opts StatusOptions) (_ *DepotStatus, err error) {
	defer mon.Task()(&ctx)(&err)

	password := opts.Password
	if password == "" {
		password = client.config.Password
	}
	if password == "" {
		password = DefaultPassword
	}

	fields, err := client.roundTrip(ctx, "status", depot.Address(), statusCommand(password, orTimeout(opts.Timeout)))
	if err != nil {
		return nil, err
	}

	values, err := parseInts(fields, 5)
	if err != nil {
		return nil, err
	}
	return &DepotStatus{
		Total:        values[0],
		Used:         values[1],
		Volatile:     values[2],
		UsedVolatile: values[3],
		MaxDuration:  time.Duration(values[4]) * time.Second,
	}, nil
}

// Allocate reserves size bytes on depot.
func (client *Client) Allocate(ctx context.Context, depot allocation.Depot, size int64, opts AllocateOptions) (_ *Allocation, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.Reliability == 0 {
		opts.Reliability = Hard
	}
	if opts.Type == 0 {
		opts.Type = ByteArray
	}
	duration := orDuration(opts.Duration)

	command := allocateCommand(opts.Reliability, opts.Type, duration, size, orTimeout(opts.Timeout))
	fields, err := client.roundTrip(ctx, "allocate", depot.Address(), command)
	if err != nil {
		return nil, err
	}
	if len(fields) < 4 {
		return nil, ErrFormat.New("allocate: expected 4 fields, got %q", fields)
	}

	now := time.Now().UTC()
	alloc := NewAllocation(client.log)
	alloc.Timestamp = now.UnixNano() / int64(time.Microsecond)
	alloc.Start = now
	alloc.End = now.Add(duration)
	alloc.Size = size
	alloc.DepotSize = size
	if err := errs.Combine(
		alloc.SetReadCapability(fields[1]),
		alloc.SetWriteCapability(fields[2]),
		alloc.SetManageCapability(fields[3]),
	); err != nil {
		return nil, err
	}
	return alloc, nil
}

// AllocateSoftByteArray reserves a soft byte array.
func (client *Client) AllocateSoftByteArray(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Soft, Type: ByteArray, Duration: duration})
}

// AllocateHardByteArray reserves a hard byte array.
func (client *Client) AllocateHardByteArray(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Hard, Type: ByteArray, Duration: duration})
}

// AllocateSoftBuffer reserves a soft buffer.
func (client *Client) AllocateSoftBuffer(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Soft, Type: Buffer, Duration: duration})
}

// AllocateHardBuffer reserves a hard buffer.
func (client *Client) AllocateHardBuffer(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Hard, Type: Buffer, Duration: duration})
}

// AllocateSoftFIFO reserves a soft fifo.
func (client *Client) AllocateSoftFIFO(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Soft, Type: FIFO, Duration: duration})
}

// AllocateHardFIFO reserves a hard fifo.
func (client *Client) AllocateHardFIFO(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Hard, Type: FIFO, Duration: duration})
}

// AllocateSoftCircularQ reserves a soft circular queue.
func (client *Client) AllocateSoftCircularQ(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Soft, Type: CircularQ, Duration: duration})
}

// AllocateHardCircularQ reserves a hard circular queue.
func (client *Client) AllocateHardCircularQ(ctx context.Context, depot allocation.Depot, size int64, duration time.Duration) (*Allocation, error) {
	return client.Allocate(ctx, depot, size, AllocateOptions{Reliability: Hard, Type: CircularQ, Duration: duration})
}

// Store writes data into alloc using its write capability and returns the
// duration the data is expected to be held.
func (client *Client) Store(ctx context.Context, alloc *Allocation, data []byte, opts StoreOptions) (_ time.Duration, err error) {
	defer mon.Task()(&ctx)(&err)

	capability := alloc.WriteCapability()
	if capability == nil {
		return 0, ErrFormat.New("allocation %q has no write capability", alloc.ID)
	}

	command := storeCommand(capability, int64(len(data)), orTimeout(opts.Timeout))
	err = client.call(ctx, "store", alloc.Address(), command, func(conn *conn) error {
		if _, err := conn.expect(); err != nil {
			return err
		}
		if err := conn.send(data); err != nil {
			return err
		}
		_, err := conn.expect()
		return err
	})
	if err != nil {
		return 0, err
	}

	alloc.DepotSize = int64(len(data))
	alloc.DepotOffset = 0
	return orDuration(opts.Duration), nil
}

// Load reads the depot range of alloc using its read capability.
func (client *Client) Load(ctx context.Context, alloc *Allocation, opts LoadOptions) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	capability := alloc.ReadCapability()
	if capability == nil {
		return nil, ErrFormat.New("allocation %q has no read capability", alloc.ID)
	}

	offset, length := alloc.DepotOffset, alloc.DepotSize
	if opts.Offset > 0 {
		offset = opts.Offset
	}
	if opts.Length > 0 {
		length = opts.Length
	}
	if length < 0 {
		return nil, ErrFormat.New("invalid length %d", length)
	}

	var data []byte
	command := loadCommand(capability, offset, length, orTimeout(opts.Timeout))
	err = client.call(ctx, "load", alloc.Address(), command, func(conn *conn) error {
		if _, err := conn.expect(); err != nil {
			return err
		}
		data = make([]byte, length)
		_, err := io.ReadFull(conn.reader, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Manage issues a manage command with the manage capability of alloc and
// returns the response fields.
func (client *Client) Manage(ctx context.Context, alloc *Allocation, opts ManageOptions) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	capability := alloc.ManageCapability()
	if capability == nil {
		return nil, ErrFormat.New("allocation %q has no manage capability", alloc.ID)
	}

	if opts.Mode == 0 {
		opts.Mode = ManageChange
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Reliability == 0 {
		opts.Reliability = Hard
	}
	opts.Duration = orDuration(opts.Duration)
	opts.Timeout = orTimeout(opts.Timeout)

	return client.roundTrip(ctx, "manage", alloc.Address(), manageCommand(capability, opts))
}

// Probe returns the depot's view of alloc.
func (client *Client) Probe(ctx context.Context, alloc *Allocation) (_ *ProbeStatus, err error) {
	defer mon.Task()(&ctx)(&err)

	fields, err := client.Manage(ctx, alloc, ManageOptions{Mode: ManageProbe})
	if err != nil {
		return nil, err
	}
	if len(fields) < 6 {
		return nil, ErrFormat.New("probe: expected at least 6 fields, got %q", fields)
	}

	values, err := parseInts(fields[1:], len(fields)-1)
	if err != nil {
		return nil, err
	}
	status := &ProbeStatus{
		ReadCount:  int(values[0]),
		WriteCount: int(values[1]),
		Size:       values[2],
		MaxSize:    values[3],
		Duration:   time.Duration(values[4]) * time.Second,
	}
	if len(values) > 5 {
		status.Reliability = Reliability(values[5])
	}
	if len(values) > 6 {
		status.Type = StorageType(values[6])
	}
	return status, nil
}

// Send transfers the depot range of source into destination, depot to
// depot, and returns the duration the copy is expected to be held.
func (client *Client) Send(ctx context.Context, source, destination *Allocation, opts SendOptions) (_ time.Duration, err error) {
	defer mon.Task()(&ctx)(&err)

	read := source.ReadCapability()
	if read == nil {
		return 0, ErrFormat.New("allocation %q has no read capability", source.ID)
	}
	write := destination.WriteCapability()
	if write == nil {
		return 0, ErrFormat.New("destination allocation has no write capability")
	}

	size := source.DepotSize - opts.Offset
	if opts.Size != nil {
		size = *opts.Size
	}

	command := sendCommand(read, write, opts.Offset, size, orTimeout(opts.Timeout))
	if _, err := client.roundTrip(ctx, "send", source.Address(), command); err != nil {
		return 0, err
	}
	return orDuration(opts.Duration), nil
}

// roundTrip sends command and returns the fields of the response line.
func (client *Client) roundTrip(ctx context.Context, name, address, command string) (fields []string, err error) {
	err = client.call(ctx, name, address, command, func(conn *conn) error {
		fields, err = conn.expect()
		return err
	})
	return fields, err
}

// call dials address, writes command and lets exchange handle the rest of
// the conversation. Failures are logged and classified.
func (client *Client) call(ctx context.Context, name, address, command string, exchange func(*conn) error) (err error) {
	log := client.log.With(zap.String("command", name), zap.String("depot", address))

	deadline := time.Now().Add(client.config.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	dialer := net.Dialer{Deadline: deadline}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		log.Warn("unable to contact depot", zap.Error(err))
		return ErrNetwork.Wrap(err)
	}
	defer func() { _ = raw.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = raw.SetDeadline(time.Now()) })
	defer stop()

	if err := raw.SetDeadline(deadline); err != nil {
		return ErrNetwork.Wrap(err)
	}

	conn := &conn{Conn: raw, reader: bufio.NewReader(raw)}
	if err := conn.send([]byte(command)); err != nil {
		log.Warn("unable to send command", zap.Error(err))
		return ErrNetwork.Wrap(err)
	}

	err = exchange(conn)
	var depotErr *DepotError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &depotErr):
		log.Info("depot returned error", zap.Int("code", depotErr.Code), zap.String("description", depotErr.Description))
		return Error.Wrap(err)
	case ErrFormat.Has(err):
		log.Warn("malformed depot response", zap.Error(err))
		return err
	default:
		log.Warn("depot communication failed", zap.Error(err))
		return ErrNetwork.Wrap(err)
	}
}

type conn struct {
	net.Conn
	reader *bufio.Reader
}

func (conn *conn) send(data []byte) error {
	_, err := conn.Write(data)
	return err
}

// expect reads a response line and fails on negative status codes.
func (conn *conn) expect() ([]string, error) {
	line, err := conn.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrFormat.New("empty response")
	}
	if err := statusError(fields[0]); err != nil {
		return nil, err
	}
	return fields, nil
}

func parseInts(fields []string, count int) ([]int64, error) {
	if len(fields) < count {
		return nil, ErrFormat.New("expected %d fields, got %q", count, fields)
	}
	values := make([]int64, count)
	for i := range values {
		value, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return nil, ErrFormat.New("field %d: %v", i, err)
		}
		values[i] = value
	}
	return values, nil
}
