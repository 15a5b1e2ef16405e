package resume

// FramesStore is the collaborator the connection treats as an opaque,
// durable, bounded, append-only log of outbound resumable frames. A
// concrete implementation lives in the store subpackage; this interface is
// what connection.go depends on so the two can be tested independently.
type FramesStore interface {
	// SaveFrames consumes a push-stream of outbound frames. Stream-id-zero
	// frames are forwarded without recording; stream-id-nonzero frames are
	// appended to the durable log and advance sentPosition. The returned
	// channel receives a single error (store overflow, or any terminal
	// failure) and is then closed; it is also closed with no value sent if
	// source is drained without error.
	SaveFrames(source <-chan Frame) <-chan error

	// ResumeStream emits, in append order, every retained frame in
	// [localAck, sentPosition), then continues live as new frames are
	// appended. At most one ResumeStream subscription is live at a time;
	// calling it again supersedes (and disposes) the previous one.
	ResumeStream() <-chan Frame

	// CancelResume disposes the current live ResumeStream subscription, if
	// any, without affecting appends in progress.
	CancelResume()

	// BeginAttachment marks the start of a new transport attachment. It
	// snapshots the current impliedPosition as the number of inbound bytes
	// the peer may legitimately redeliver on the new transport before any
	// frame is considered novel; this is what makes ResumableFrameReceived
	// correctly reject a post-reconnect resend of already-admitted bytes.
	BeginAttachment()

	// ResumableFrameReceived is called for each inbound stream-id-nonzero
	// frame. It returns true if the frame advances impliedPosition
	// (first-time delivery), false if it is a replay already accounted for.
	ResumableFrameReceived(frame Frame) bool

	// ReleaseFrames advances localAck to remotePosition and releases
	// (Done()s) frames retained below it.
	ReleaseFrames(remotePosition uint64)

	// Close tears the store down: any live ResumeStream subscription is
	// cancelled and every retained frame is released.
	Close()

	SentPosition() uint64
	LocalAck() uint64
	ImpliedPosition() uint64
}
