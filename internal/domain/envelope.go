package domain

// Envelope is what the cache hands back to callers. It is always one of
// Fresh, Stale, Fallback or Generic.
type Envelope interface {
	Payload() NeighborhoodData
	envelope()
}

// Fresh data was served as-is or was just refreshed.
type Fresh struct {
	Data    NeighborhoodData
	AgeDays int
}

// Stale data was served while a background refresh may be pending.
type Stale struct {
	Data          NeighborhoodData
	AgeDays       int
	RefreshQueued bool
}

// Fallback is expired data served because the synchronous refresh failed.
type Fallback struct {
	Data    NeighborhoodData
	AgeDays int
	Reason  string
}

// Generic is served when nothing usable exists.
type Generic struct {
	Data   NeighborhoodData
	Reason string
}

func (e Fresh) Payload() NeighborhoodData    { return e.Data }
func (e Stale) Payload() NeighborhoodData    { return e.Data }
func (e Fallback) Payload() NeighborhoodData { return e.Data }
func (e Generic) Payload() NeighborhoodData  { return e.Data }

func (Fresh) envelope()    {}
func (Stale) envelope()    {}
func (Fallback) envelope() {}
func (Generic) envelope()  {}

type CacheMetadata struct {
	AgeDays       int    `json:"age_days"`
	Tier          string `json:"tier"`
	RefreshQueued bool   `json:"refresh_queued"`
	Reason        string `json:"reason,omitempty"`
}

// EnvelopeView is the flattened JSON form of an Envelope.
type EnvelopeView struct {
	NeighborhoodData
	IsFresh       bool          `json:"is_fresh"`
	IsStale       bool          `json:"is_stale"`
	IsFallback    bool          `json:"is_fallback"`
	IsGeneric     bool          `json:"is_generic"`
	CacheMetadata CacheMetadata `json:"cache_metadata"`
}

func Describe(env Envelope) EnvelopeView {
	view := EnvelopeView{NeighborhoodData: env.Payload()}
	switch e := env.(type) {
	case Fresh:
		view.IsFresh = true
		view.CacheMetadata = CacheMetadata{AgeDays: e.AgeDays, Tier: "fresh"}
	case Stale:
		view.IsStale = true
		view.CacheMetadata = CacheMetadata{AgeDays: e.AgeDays, Tier: "stale", RefreshQueued: e.RefreshQueued}
	case Fallback:
		view.IsFallback = true
		view.CacheMetadata = CacheMetadata{AgeDays: e.AgeDays, Tier: "expired", Reason: e.Reason}
	case Generic:
		view.IsGeneric = true
		view.CacheMetadata = CacheMetadata{Tier: "generic", Reason: e.Reason}
	}
	return view
}
