package domain

type SubmitOrderLine struct {
	ProductID int    `json:"product_id"`
	Qty       int    `json:"qty"`
	Note      string `json:"note,omitempty"`
}

type SubmitOrderRequest struct {
	OrderRef string            `json:"order_ref"`
	ConfigID int               `json:"config_id"`
	Lines    []SubmitOrderLine `json:"lines"`
}

type SubmitOrderResponse struct {
	OrderID   int    `json:"order_id"`
	OrderRef  string `json:"order_ref"`
	Status    string `json:"status"`
	ScreenIDs []int  `json:"screen_ids"`
}

type StatusCounts struct {
	Draft      int `json:"draft"`
	Waiting    int `json:"waiting"`
	Ready      int `json:"ready"`
	TotalToday int `json:"total_today"`
}

type CountdownState struct {
	Minutes   int  `json:"minutes"`
	Seconds   int  `json:"seconds"`
	Completed bool `json:"completed"`
}

// Snapshot is the authoritative per-screen view handed to the UI layer.
type Snapshot struct {
	Orders    []Order                `json:"orders"`
	Lines     []OrderLine            `json:"lines"`
	PrepTimes map[int]float64        `json:"prepare_times"`
	Counts    StatusCounts           `json:"counts"`
	Countdown map[int]CountdownState `json:"countdowns,omitempty"`
}
