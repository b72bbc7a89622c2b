/*
Package geo judges arrival claims against a target geofence.

Judge is a pure function: given a location ping, a target point, and a
radius, it answers passed/failed plus the great-circle distance. The
distance comes from the haversine formula over a mean Earth radius of
6371 km, which is accurate to well under a meter at geofence scale.

An unreliable ping (nil, invalid flag, missing or negative accuracy)
is never an error. It fails the judgment with an infinite distance, so
an unusable position can never be scored a success. Judgment's JSON
form renders that infinity as a null distance.

# Usage

	j := geo.Judge(ping, challenge.TargetLocation, challenge.TargetRadiusMeters)
	if j.Passed {
		// inside the geofence
	}
*/
package geo
