package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
)

const (
	serviceName = "duelquiz.v1.DuelService"

	// ParticipantMetadata is the gRPC metadata key carrying the caller's id.
	ParticipantMetadata = "x-participant-id"

	codecName = "json"
)

// DuelServiceServer is the server side of duelquiz.v1.DuelService.
type DuelServiceServer interface {
	FindOrCreate(context.Context, *FindOrCreateRequest) (*MatchResponse, error)
	ListOpen(context.Context, *ListOpenRequest) (*ListOpenResponse, error)
	Join(context.Context, *JoinRequest) (*MatchResponse, error)
	SubmitAnswer(context.Context, *SubmitAnswerRequest) (*SubmitAnswerResponse, error)
	GetSession(context.Context, *GetSessionRequest) (*GetSessionResponse, error)
	Events(*EventsRequest, grpc.ServerStream) error
}

func RegisterDuelServiceServer(s grpc.ServiceRegistrar, srv DuelServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DuelServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("FindOrCreate", DuelServiceServer.FindOrCreate),
		unary("ListOpen", DuelServiceServer.ListOpen),
		unary("Join", DuelServiceServer.Join),
		unary("SubmitAnswer", DuelServiceServer.SubmitAnswer),
		unary("GetSession", DuelServiceServer.GetSession),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
		},
	},
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unary builds the method descriptor of a unary call. The participant is moved
// from metadata into the context, and errors leave as gRPC statuses.
func unary[Req, Resp any](method string, call func(DuelServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(DuelServiceServer), incomingParticipant(ctx), req.(*Req))
				if err != nil {
					return nil, errors.Convert(err)
				}
				return resp, nil
			}

			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(EventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	if err := srv.(DuelServiceServer).Events(in, &participantStream{stream}); err != nil {
		return errors.Convert(err)
	}
	return nil
}

type participantStream struct {
	grpc.ServerStream
}

func (s *participantStream) Context() context.Context {
	return incomingParticipant(s.ServerStream.Context())
}

func incomingParticipant(ctx context.Context) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(ParticipantMetadata); len(v) > 0 {
		return withParticipant(ctx, v[0])
	}
	return ctx
}

// Events streams the session's notifications to the caller until the game
// completes. Response headers are sent once the subscription is live, so a
// client that waits for them cannot miss anything published afterwards. The
// stream ends at once for a completed session.
func (a *API) Events(req *EventsRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()

	sub, ss, err := a.subscribe(ctx, req.SessionID)
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	if ss.Status == domain.StatusCompleted {
		return nil
	}

	return forward(ctx, sub, func(e *Event) error {
		return stream.SendMsg(e)
	})
}

// jsonCodec lets the service run without generated protobuf types. Clients
// select it with grpc.CallContentSubtype("json").
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
