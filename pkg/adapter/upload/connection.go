package upload

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/jobs"
	"github.com/marmos91/vidforge/pkg/protocol"
)

// state is a stage of the request pipeline.
type state int

const (
	stateAwaitingHeader state = iota
	stateAwaitingMetadata
	stateAwaitingMediaType
	stateCapacityCheck
	stateReceivingPayload
	statePersisting
	stateProcessing
	stateRespondingSuccess
	stateRespondingFailure
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateAwaitingHeader:
		return "AwaitingHeader"
	case stateAwaitingMetadata:
		return "AwaitingMetadata"
	case stateAwaitingMediaType:
		return "AwaitingMediaType"
	case stateCapacityCheck:
		return "CapacityCheck"
	case stateReceivingPayload:
		return "ReceivingPayload"
	case statePersisting:
		return "Persisting"
	case stateProcessing:
		return "Processing"
	case stateRespondingSuccess:
		return "RespondingSuccess"
	case stateRespondingFailure:
		return "RespondingFailure"
	case stateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// connection drives one accepted socket through exactly one request.
type connection struct {
	server   *Adapter
	conn     net.Conn
	clientIP string
	remote   string

	state state
	job   *jobs.Job
}

func newConnection(server *Adapter, conn net.Conn, clientIP string) *connection {
	return &connection{
		server:   server,
		conn:     conn,
		clientIP: clientIP,
		remote:   conn.RemoteAddr().String(),
	}
}

// Serve handles the request and always closes the socket.
//
// No error escapes: every outcome is framed as a Result or a Failure. A
// failure to send the response is logged only.
func (c *connection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in upload connection handler from %s: %v", c.remote, r)
		}
		c.enter(stateClosed)
		_ = c.conn.Close()
	}()

	start := time.Now()
	c.server.metrics.RecordRequestStart()
	defer c.server.metrics.RecordRequestEnd()

	response, operation, failure := c.run(ctx)

	if failure != nil {
		c.enter(stateRespondingFailure)
		c.fail(ctx, failure)

		frame, err := protocol.NewFailureFrame(failure)
		if err != nil {
			logger.Error("Failed to encode failure response for %s: %v", c.remote, err)
			return
		}
		response = frame
	}

	if err := c.send(response); err != nil {
		logger.Warn("Failed to send response to %s: %v", c.remote, err)
	} else if failure == nil {
		c.server.metrics.RecordBytesSent(uint64(len(response.Payload)))
	}

	code := ""
	if failure != nil {
		code = failure.Code.String()
		logger.Info("Request from %s failed in %s: %d %s (%s)", c.remote, time.Since(start).Round(time.Millisecond),
			int(failure.Code), failure.Code, failure.Description)
	} else {
		logger.Info("Request from %s completed in %s: %s, %s returned",
			c.remote, time.Since(start).Round(time.Millisecond), operation, humanize.IBytes(uint64(len(response.Payload))))
	}
	c.server.metrics.RecordRequest(operation, time.Since(start), code)
}

// run executes the pipeline up to the response. Exactly one of response and
// failure is non-nil. A panic in any stage becomes a 5000 failure.
func (c *connection) run(ctx context.Context) (response *protocol.Frame, operation string, failure *protocol.Failure) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in upload pipeline from %s during %s: %v", c.remote, c.state, r)
			response = nil
			failure = protocol.NewFailure(protocol.CodeUnexpectedError, "An unexpected error occurred while handling the request")
		}
	}()

	if c.server.config.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout)); err != nil {
			return nil, "", protocol.AsFailure(fmt.Errorf("set read deadline: %w", err))
		}
	}

	// Step 1: header
	c.enter(stateAwaitingHeader)
	header, err := protocol.ReadHeader(c.conn)
	if err != nil {
		return nil, "", protocol.ProtocolFailure("Could not read request header: %v", err)
	}
	if header.PayloadSize > c.server.config.MaxPayloadBytes {
		return nil, "", protocol.ProtocolFailure("Declared payload of %s exceeds the %s limit",
			humanize.IBytes(header.PayloadSize), humanize.IBytes(c.server.config.MaxPayloadBytes))
	}

	c.job = jobs.New(c.clientIP)
	c.job.PayloadSize = header.PayloadSize
	c.record(ctx)

	// Step 2: metadata and media type sections
	c.enter(stateAwaitingMetadata)
	metadata, err := protocol.ReadSection(c.conn, uint64(header.MetadataSize))
	if err != nil {
		return nil, "", protocol.ProtocolFailure("Could not read request metadata: %v", err)
	}

	c.enter(stateAwaitingMediaType)
	rawMediaType, err := protocol.ReadSection(c.conn, uint64(header.MediaTypeSize))
	if err != nil {
		return nil, "", protocol.ProtocolFailure("Could not read media type: %v", err)
	}

	op, err := protocol.ParseOperation(metadata)
	if err != nil {
		c.drain(header.PayloadSize)
		return nil, "", protocol.AsFailure(err)
	}
	operation = string(op.Kind())
	c.job.Operation = operation

	mediaType, err := protocol.NormalizeMediaType(string(rawMediaType))
	if err != nil {
		c.drain(header.PayloadSize)
		return nil, operation, protocol.ProtocolFailure("Unsupported media type %q", string(rawMediaType))
	}
	c.job.MediaType = mediaType

	// Step 3: quota admission, before the payload is accepted
	c.enter(stateCapacityCheck)
	decision := c.server.deps.Capacity.Check(ctx, header.PayloadSize)
	if decision.ScanErr != nil {
		// usage is unknown; a zero gauge would read as empty storage
		c.server.metrics.RecordStorageScanFailure()
	} else {
		c.server.metrics.RecordStorageUsage(decision.Used, decision.Quota)
	}
	if !decision.Allowed {
		// keep the byte stream consistent; the rejection stands even if the drain fails
		c.drain(header.PayloadSize)
		return nil, operation, protocol.NewFailure(protocol.CodeStorageFull, fmt.Sprintf(
			"Not enough storage: %s requested, %s available",
			humanize.IBytes(header.PayloadSize), humanize.IBytes(decision.Remaining())))
	}

	// Step 4: payload
	c.enter(stateReceivingPayload)
	payload, err := protocol.ReadSection(c.conn, header.PayloadSize)
	if err != nil {
		return nil, operation, protocol.NewFailure(protocol.CodeReceiveFailed,
			fmt.Sprintf("Payload not fully received: %v", err))
	}
	c.server.metrics.RecordBytesReceived(header.PayloadSize)

	// Step 5: persist
	c.enter(statePersisting)
	storedPath, err := c.server.deps.Storage.Save(ctx, payload, c.server.deps.BaseName+"."+mediaType)
	if err != nil {
		logger.Error("Failed to store upload from %s: %v", c.remote, err)
		return nil, operation, protocol.NewFailure(protocol.CodeSaveFailed, "The uploaded file could not be saved")
	}
	c.job.StoredPath = storedPath
	c.job.Status = jobs.StatusStored
	c.record(ctx)

	// Step 6: process
	c.enter(stateProcessing)
	outputPath, err := c.server.deps.Processor.Process(ctx, storedPath, op)
	if err != nil {
		return nil, operation, protocol.NewFailure(protocol.CodeProcessingFailed,
			fmt.Sprintf("Operation %s failed", operation))
	}
	c.job.OutputPath = outputPath

	output, err := os.ReadFile(outputPath)
	if err != nil {
		logger.Error("Failed to read processed output %s: %v", outputPath, err)
		return nil, operation, protocol.NewFailure(protocol.CodeProcessingFailed, "The processed file could not be read")
	}

	c.archive(ctx, outputPath)

	c.job.Status = jobs.StatusProcessed
	c.record(ctx)

	c.enter(stateRespondingSuccess)
	return protocol.NewResultFrame(op.OutputMediaType(mediaType), output), operation, nil
}

// drain discards the rest of a rejected request so the stream stays aligned.
func (c *connection) drain(n uint64) {
	if err := protocol.Discard(c.conn, n); err != nil {
		logger.Debug("Drain of %d bytes from %s stopped early: %v", n, c.remote, err)
	}
}

// archive uploads the output when archiving is enabled. Failures are logged.
func (c *connection) archive(ctx context.Context, outputPath string) {
	key, err := c.server.deps.Archive.Archive(ctx, c.job.ID, outputPath)
	if err != nil {
		logger.Warn("Failed to archive %s for job %s: %v", outputPath, c.job.ID, err)
		return
	}
	c.job.ArchiveKey = key
}

func (c *connection) send(frame *protocol.Frame) error {
	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	return protocol.WriteFrame(c.conn, frame)
}

// fail marks the job failed. Requests rejected before a header was read have no job.
func (c *connection) fail(ctx context.Context, failure *protocol.Failure) {
	if c.job == nil {
		return
	}
	c.job.Status = jobs.StatusFailed
	c.job.ErrorCode = int(failure.Code)
	c.job.Error = failure.Description
	c.record(ctx)
}

// record writes the job to the ledger. Ledger failures never fail a request.
func (c *connection) record(ctx context.Context) {
	if c.server.deps.Jobs == nil || c.job == nil {
		return
	}
	if err := c.server.deps.Jobs.Put(ctx, c.job); err != nil {
		logger.Warn("Failed to record job %s: %v", c.job.ID, err)
	}
}

func (c *connection) enter(next state) {
	logger.Debug("Upload %s: %s -> %s", c.remote, c.state, next)
	c.state = next
}
