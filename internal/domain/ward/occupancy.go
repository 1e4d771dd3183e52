package ward

import "math"

type WardStats struct {
	Total         int     `json:"total"`
	Occupied      int     `json:"occupied"`
	Available     int     `json:"available"`
	Maintenance   int     `json:"maintenance"`
	Reserved      int     `json:"reserved"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

type TypeStats struct {
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
}

// Summary is the payload of the bed statistics endpoint.
type Summary struct {
	Total         int                     `json:"total"`
	Occupied      int                     `json:"occupied"`
	Available     int                     `json:"available"`
	Maintenance   int                     `json:"maintenance"`
	Reserved      int                     `json:"reserved"`
	OccupancyRate float64                 `json:"occupancy_rate"`
	ByType        map[RoomType]*TypeStats `json:"by_type"`
	WardOccupancy map[string]*WardStats   `json:"ward_occupancy"`
}

// occupancyRate is the occupied share in percent, one decimal.
func occupancyRate(occupied, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(occupied)/float64(total)*1000) / 10
}

func WardOccupancy(beds []*Bed) map[string]*WardStats {
	out := make(map[string]*WardStats)
	for _, b := range beds {
		ws, ok := out[b.Ward]
		if !ok {
			ws = &WardStats{}
			out[b.Ward] = ws
		}
		ws.Total++
		switch b.Status {
		case BedOccupied:
			ws.Occupied++
		case BedAvailable:
			ws.Available++
		case BedMaintenance:
			ws.Maintenance++
		case BedReserved:
			ws.Reserved++
		}
	}
	for _, ws := range out {
		ws.OccupancyRate = occupancyRate(ws.Occupied, ws.Total)
	}
	return out
}

// TypeOccupancy always reports every room type, including empty ones.
func TypeOccupancy(beds []*Bed) map[RoomType]*TypeStats {
	out := make(map[RoomType]*TypeStats, len(RoomTypes))
	for _, rt := range RoomTypes {
		out[rt] = &TypeStats{}
	}
	for _, b := range beds {
		ts, ok := out[b.RoomType]
		if !ok {
			continue
		}
		ts.Total++
		switch b.Status {
		case BedOccupied:
			ts.Occupied++
		case BedAvailable:
			ts.Available++
		}
	}
	return out
}

func Summarize(beds []*Bed) *Summary {
	s := &Summary{
		ByType:        TypeOccupancy(beds),
		WardOccupancy: WardOccupancy(beds),
	}
	for _, b := range beds {
		s.Total++
		switch b.Status {
		case BedOccupied:
			s.Occupied++
		case BedAvailable:
			s.Available++
		case BedMaintenance:
			s.Maintenance++
		case BedReserved:
			s.Reserved++
		}
	}
	s.OccupancyRate = occupancyRate(s.Occupied, s.Total)
	return s
}
