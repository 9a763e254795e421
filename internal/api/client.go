package api

import (
	"context"
	stderrors "errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
)

// Client calls DuelService on behalf of one participant. Errors come back as
// *errors.Error with their reason, so callers can use errors.HasReason.
type Client struct {
	conn        grpc.ClientConnInterface
	participant string
}

func NewClient(conn grpc.ClientConnInterface, participant string) *Client {
	return &Client{
		conn:        conn,
		participant: participant,
	}
}

func (c *Client) FindOrCreate(ctx context.Context, f domain.Filter) (*MatchResponse, error) {
	resp := new(MatchResponse)
	if err := c.invoke(ctx, "FindOrCreate", &FindOrCreateRequest{Filter: f}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListOpen(ctx context.Context, f domain.Filter) (*ListOpenResponse, error) {
	resp := new(ListOpenResponse)
	if err := c.invoke(ctx, "ListOpen", &ListOpenRequest{Filter: f}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Join(ctx context.Context, sessionID string) (*MatchResponse, error) {
	resp := new(MatchResponse)
	if err := c.invoke(ctx, "Join", &JoinRequest{SessionID: sessionID}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	resp := new(SubmitAnswerResponse)
	if err := c.invoke(ctx, "SubmitAnswer", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*GetSessionResponse, error) {
	resp := new(GetSessionResponse)
	if err := c.invoke(ctx, "GetSession", &GetSessionRequest{SessionID: sessionID}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	err := c.conn.Invoke(c.outgoing(ctx), fullMethod(method), in, out, grpc.CallContentSubtype(codecName))
	if err != nil {
		return errors.FromStatus(err)
	}
	return nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, ParticipantMetadata, c.participant)
}

// Events opens the session's notification stream. It returns once the server
// is subscribed.
func (c *Client) Events(ctx context.Context, sessionID string) (*EventStream, error) {
	stream, err := c.conn.NewStream(c.outgoing(ctx), &serviceDesc.Streams[0], fullMethod("Events"),
		grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, errors.FromStatus(err)
	}

	if err := stream.SendMsg(&EventsRequest{SessionID: sessionID}); err != nil {
		return nil, errors.FromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errors.FromStatus(err)
	}
	if _, err := stream.Header(); err != nil {
		return nil, errors.FromStatus(err)
	}

	return &EventStream{stream: stream}, nil
}

type EventStream struct {
	stream grpc.ClientStream
}

// Recv returns the next event, or io.EOF once the game is over.
func (s *EventStream) Recv() (*Event, error) {
	e := new(Event)
	if err := s.stream.RecvMsg(e); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.FromStatus(err)
	}
	return e, nil
}
