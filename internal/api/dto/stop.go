package dto

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type StopResponse struct {
	StopID   string       `json:"stop_id"`
	Address  string       `json:"address"`
	Location *Coordinates `json:"location"`
	Position int          `json:"position"`
}

type ListStopsResponse struct {
	RouteID string         `json:"route_id"`
	Stops   []StopResponse `json:"stops"`
}

type ShuffleResponse struct {
	RouteID        string   `json:"route_id"`
	OrderedStopIDs []string `json:"ordered_stop_ids"`
	Version        int      `json:"version"`
}
