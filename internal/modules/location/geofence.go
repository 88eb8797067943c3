// README: Pure zone-membership checks and entry/exit detection.
package location

import (
	"tawsil/internal/geo"
	"tawsil/internal/types"
)

// IsPointInGeofence reports whether p is within the zone radius of its center.
func IsPointInGeofence(p types.Point, z Zone) bool {
	return geo.InCircle(p, z.Center, z.RadiusKm)
}

// ZonesContaining returns the zones that contain p, in input order.
func ZonesContaining(p types.Point, zones []Zone) []Zone {
	var out []Zone
	for _, z := range zones {
		if IsPointInGeofence(p, z) {
			out = append(out, z)
		}
	}
	return out
}

// DetectGeofenceEvents compares two consecutive positions and reports every
// zone that was entered or left between them. A nil prev means the driver
// had no known position, so any zone containing curr counts as an entry.
func DetectGeofenceEvents(prev *types.Point, curr types.Point, zones []Zone) []GeofenceEvent {
	var events []GeofenceEvent
	for _, z := range zones {
		wasIn := prev != nil && IsPointInGeofence(*prev, z)
		isIn := IsPointInGeofence(curr, z)
		switch {
		case !wasIn && isIn:
			events = append(events, GeofenceEvent{Zone: z.Name, Type: z.Type, Event: GeofenceEntry})
		case wasIn && !isIn:
			events = append(events, GeofenceEvent{Zone: z.Name, Type: z.Type, Event: GeofenceExit})
		}
	}
	return events
}
