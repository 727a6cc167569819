package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"purgegame/internal/game/core"
	"purgegame/internal/game/engine"
	"purgegame/internal/protocol"
)

type Server struct {
	engine *engine.Engine
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(e *engine.Engine, logger *log.Logger) *Server {
	s := &Server{
		engine: e,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.Printf("[ws] upgrade failed from=%s err=%v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()

		account := s.handshake(conn)
		if account == "" {
			return
		}
		s.log.Printf("[ws] session account=%s from=%s", account, r.RemoteAddr)

		// Request/response loop. The engine serializes all mutation, so one
		// message at a time per connection is the natural shape.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				continue
			}
			resp := s.dispatch(r.Context(), account, base.Type, msg)
			if resp == nil {
				continue
			}
			if err := writeJSON(conn, resp); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, account core.AccountID, msgType string, msg []byte) *protocol.ResultMsg {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch msgType {
	case protocol.TypeAdvance:
		var m protocol.AdvanceMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoReject(m.ReqID, err)
		}
		res, err := s.engine.Advance(ctx, account, m.WorkBudget)
		if err != nil {
			return reject(m.ReqID, err)
		}
		out := accept(m.ReqID)
		out.Finished = &res.Finished
		out.Processed = int(res.Processed)
		out.PaidWei = res.BonusWei
		return out

	case protocol.TypePurchase:
		var m protocol.PurchaseMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoReject(m.ReqID, err)
		}
		if err := s.engine.Purchase(ctx, account, m.Quantity); err != nil {
			return reject(m.ReqID, err)
		}
		return accept(m.ReqID)

	case protocol.TypePurge:
		var m protocol.PurgeMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoReject(m.ReqID, err)
		}
		res, err := s.engine.Purge(ctx, account, m.TokenIDs)
		if err != nil {
			return reject(m.ReqID, err)
		}
		out := accept(m.ReqID)
		out.Processed = res.Processed
		if res.Exterminated != nil {
			trait := int(*res.Exterminated)
			out.Exterminated = &trait
		}
		return out

	case protocol.TypeAirdrop:
		var m protocol.AirdropMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoReject(m.ReqID, err)
		}
		res, err := s.engine.AirdropStep(ctx, m.WriteBudget)
		if err != nil {
			return reject(m.ReqID, err)
		}
		out := accept(m.ReqID)
		out.Finished = &res.Finished
		out.Processed = int(res.Processed)
		return out

	case protocol.TypeClaim:
		var m protocol.ClaimMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoReject(m.ReqID, err)
		}
		paid, err := s.engine.Claim(ctx, account)
		if err != nil {
			return reject(m.ReqID, err)
		}
		out := accept(m.ReqID)
		out.PaidWei = paid
		return out

	case protocol.TypeStatus:
		var m protocol.StatusMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoReject(m.ReqID, err)
		}
		var trait *uint16
		if m.TraitID != nil && *m.TraitID >= 0 && *m.TraitID < core.TraitCount {
			t := uint16(*m.TraitID)
			trait = &t
		}
		st, err := s.engine.Status(ctx, account, trait)
		if err != nil {
			return reject(m.ReqID, err)
		}
		out := accept(m.ReqID)
		out.Status = statusBody(st)
		return out
	}
	return nil
}

func statusBody(st engine.Status) *protocol.StatusBody {
	body := &protocol.StatusBody{
		Level:          st.Level,
		State:          uint8(st.State),
		Phase:          st.Step,
		JackpotCounter: st.JackpotCounter,
		PoolCurrent:    st.PoolCurrent,
		PoolNext:       st.PoolNext,
		PoolCarryover:  st.PoolCarryover,
		PoolSnapshot:   st.PoolSnapshot,
		Claimable:      st.Claimable,
	}
	if st.TraitRemaining != nil {
		n := int(*st.TraitRemaining)
		body.TraitRemaining = &n
	}
	if st.TicketCount != nil {
		n := *st.TicketCount
		body.TicketCount = &n
	}
	return body
}

func accept(reqID string) *protocol.ResultMsg {
	return &protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Accepted:        true,
	}
}

func protoReject(reqID string, err error) *protocol.ResultMsg {
	return &protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Accepted:        false,
		Code:            protocol.ErrProtoBadRequest,
		Message:         err.Error(),
	}
}

func reject(reqID string, err error) *protocol.ResultMsg {
	return &protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Accepted:        false,
		Code:            codeFor(err),
		Message:         err.Error(),
	}
}

// codeFor maps core errors onto wire codes. Unknown errors surface as
// internal so callers never see raw Go error strings as codes.
func codeFor(err error) string {
	switch {
	case errors.Is(err, core.ErrEntropyPending):
		return protocol.ErrEntropyPending
	case errors.Is(err, core.ErrSameWindow):
		return protocol.ErrSameWindow
	case errors.Is(err, core.ErrPhaseGate):
		return protocol.ErrPhaseGate
	case errors.Is(err, core.ErrNoProgress):
		return protocol.ErrBudgetStarved
	case errors.Is(err, core.ErrNothingToClaim):
		return protocol.ErrNoWork
	case errors.Is(err, core.ErrPhaseMismatch):
		return protocol.ErrPhaseMismatch
	case errors.Is(err, core.ErrNotOwner):
		return protocol.ErrNotOwner
	case errors.Is(err, core.ErrQueueFull):
		return protocol.ErrQueueFull
	case errors.Is(err, core.ErrQueueEmpty):
		return protocol.ErrQueueEmpty
	case errors.Is(err, core.ErrMaxLevel):
		return protocol.ErrMaxLevel
	case errors.Is(err, core.ErrBadRequest), errors.Is(err, core.ErrAlreadyPurged):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

func (s *Server) handshake(conn *websocket.Conn) core.AccountID {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return ""
	}
	account := core.AccountID(strings.TrimSpace(hello.Account))
	if account == "" {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "empty account"), time.Now().Add(time.Second))
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := s.engine.Status(ctx, account, nil)
	if err != nil {
		return ""
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Account:         string(account),
		GameParams: protocol.GameParams{
			Level:      st.Level,
			State:      uint8(st.State),
			Phase:      st.Step,
			PriceWei:   st.PriceWei,
			TraitCount: core.TraitCount,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return ""
	}
	return account
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
