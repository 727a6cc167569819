package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Account         string `json:"account"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Account         string     `json:"account"`
	GameParams      GameParams `json:"game_params"`
}

type GameParams struct {
	Level        uint32 `json:"level"`
	State        uint8  `json:"state"`
	Phase        uint8  `json:"phase"`
	PriceWei     uint64 `json:"price_wei"`
	TraitCount   int    `json:"trait_count"`
	TuningDigest string `json:"tuning_digest,omitempty"`
}

// ADVANCE (client -> server): one bounded step of the phase controller.
// A zero work budget takes the default path and earns the liveness bonus.
type AdvanceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	WorkBudget      uint32 `json:"work_budget"`
}

// PURCHASE (client -> server): mint placeholder tokens at the level price.
type PurchaseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Quantity        uint32 `json:"quantity"`
}

// PURGE (client -> server): consume a batch of held tokens.
type PurgeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	TokenIDs        []uint64 `json:"token_ids"`
}

// AIRDROP (client -> server): one bounded airdrop batch step.
type AirdropMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	WriteBudget     uint32 `json:"write_budget"`
}

// CLAIM (client -> server): pull accrued balance.
type ClaimMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
}

// STATUS (client -> server): read-only snapshot of public state.
type StatusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	TraitID         *int   `json:"trait_id,omitempty"`
}

// RESULT (server -> client): outcome of any request.
type ResultMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ReqID           string      `json:"req_id"`
	Accepted        bool        `json:"accepted"`
	Code            string      `json:"code,omitempty"`
	Message         string      `json:"message,omitempty"`
	Status          *StatusBody `json:"status,omitempty"`
	PaidWei         uint64      `json:"paid_wei,omitempty"`
	Finished        *bool       `json:"finished,omitempty"`
	Exterminated    *int        `json:"exterminated,omitempty"`
	Processed       int         `json:"processed,omitempty"`
}

// StatusBody carries the read-only game view: current phase, pool sizes,
// remaining-trait counts, and ticket counts.
type StatusBody struct {
	Level          uint32 `json:"level"`
	State          uint8  `json:"state"`
	Phase          uint8  `json:"phase"`
	JackpotCounter uint8  `json:"jackpot_counter"`
	PoolCurrent    uint64 `json:"pool_current"`
	PoolNext       uint64 `json:"pool_next"`
	PoolCarryover  uint64 `json:"pool_carryover"`
	PoolSnapshot   uint64 `json:"pool_snapshot"`
	TraitRemaining *int   `json:"trait_remaining,omitempty"`
	TicketCount    *int   `json:"ticket_count,omitempty"`
	Claimable      uint64 `json:"claimable"`
}
