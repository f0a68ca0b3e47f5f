package domain

type OrderStatus string

const (
	StatusDraft   OrderStatus = "draft"
	StatusWaiting OrderStatus = "waiting"
	StatusReady   OrderStatus = "ready"
	StatusCancel  OrderStatus = "cancel"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusReady, StatusCancel:
		return true
	}
	return false
}

type Category struct {
	ID   int
	Name string
}

type Product struct {
	ID          int
	Name        string
	CategoryIDs []int
	// PrepMinutes is the expected preparation time; 0 means no estimate.
	PrepMinutes float64
}

type Order struct {
	ID int
	// Ref is the human-readable order reference shown on screens.
	Ref      string
	ConfigID int
	Status   OrderStatus
	// Submission wall-clock time, hour:minute resolution.
	OrderedHour   int
	OrderedMinute int
	// ScreenIDs is fixed at submission time from the lines' product
	// categories; later category edits do not reroute the order.
	ScreenIDs []int
	// AvgPrepareTime is the order-level estimate in minutes, the max of
	// its lines' product estimates.
	AvgPrepareTime float64
}

type OrderLine struct {
	ID        int
	OrderID   int
	ProductID int
	Qty       int
	Note      string
	Status    OrderStatus
}

type Screen struct {
	ID       int
	Name     string
	ConfigID int
	// CategoryIDs is the configured filter; empty means show everything.
	CategoryIDs []int

	SoundEnabled   bool
	SoundFile      string
	SoundVolume    float64 // 0..1
	CustomSoundURL string
	AutoRefreshSec int
}

// ScreenRef is the routing view of a screen used by the resolver and fanout.
type ScreenRef struct {
	ID          int
	Name        string
	CategoryIDs []int
}
