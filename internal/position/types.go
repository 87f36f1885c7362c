package position

// Status Active or Closed
type Status int

const (
	StatusActive Status = iota
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
