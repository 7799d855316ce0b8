package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Vec3 is a direction or position in the J2000 equatorial frame. Sky
// directions are unit vectors: X towards RA 0h, Z towards the north pole.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns v × other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns v scaled to unit length. The zero vector is returned as-is.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// FromEquatorial converts right ascension and declination (degrees) into a
// unit direction vector.
func FromEquatorial(raDeg, decDeg float64) Vec3 {
	ra := raDeg * degToRad
	dec := decDeg * degToRad
	return Vec3{
		X: math.Cos(dec) * math.Cos(ra),
		Y: math.Cos(dec) * math.Sin(ra),
		Z: math.Sin(dec),
	}
}

// ToEquatorial converts a direction into right ascension [0, 360) and
// declination [-90, 90] in degrees.
func ToEquatorial(v Vec3) (raDeg, decDeg float64) {
	u := v.Normalize()
	dec := math.Asin(clamp(u.Z, -1, 1)) * radToDeg
	ra := math.Atan2(u.Y, u.X) * radToDeg
	if ra < 0 {
		ra += 360
	}
	return ra, dec
}

// AngularSeparationDeg returns the angle between two directions in degrees.
func AngularSeparationDeg(a, b Vec3) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	// atan2 form stays accurate for both tiny and near-antipodal separations.
	cross := a.Cross(b).Norm()
	return math.Atan2(cross, a.Dot(b)) * radToDeg
}

// Basis returns two unit vectors that, together with the unit direction d,
// form a right-handed orthonormal frame.
func Basis(d Vec3) (u, w Vec3) {
	d = d.Normalize()
	ref := Vec3{Z: 1}
	if math.Abs(d.Z) > 0.9 {
		ref = Vec3{X: 1}
	}
	u = ref.Cross(d).Normalize()
	w = d.Cross(u)
	return u, w
}

// Offset returns the direction reached by travelling angleDeg along the great
// circle that leaves d at position angle azimuthDeg (measured in d's Basis).
func Offset(d Vec3, azimuthDeg, angleDeg float64) Vec3 {
	d = d.Normalize()
	u, w := Basis(d)
	phi := azimuthDeg * degToRad
	theta := angleDeg * degToRad
	e := u.Scale(math.Cos(phi)).Add(w.Scale(math.Sin(phi)))
	return d.Scale(math.Cos(theta)).Add(e.Scale(math.Sin(theta)))
}

// Observer is a site on the Earth's surface, in geodetic degrees.
type Observer struct {
	LatitudeDeg  float64
	LongitudeDeg float64 // east positive
}

// LocalSiderealDeg returns the local mean sidereal time at the observer, in
// degrees [0, 360).
func (o Observer) LocalSiderealDeg(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	// Sub-second precision is irrelevant at sidereal-time scale.
	gmst := satellite.ThetaG_JD(jd) * radToDeg
	lst := math.Mod(gmst+o.LongitudeDeg, 360)
	if lst < 0 {
		lst += 360
	}
	return lst
}

// Horizontal returns the altitude and azimuth (degrees; azimuth from north
// through east) of an equatorial position as seen by the observer at t.
func (o Observer) Horizontal(raDeg, decDeg float64, t time.Time) (altDeg, azDeg float64) {
	ha := (o.LocalSiderealDeg(t) - raDeg) * degToRad
	lat := o.LatitudeDeg * degToRad
	dec := decDeg * degToRad

	sinAlt := math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(ha)
	alt := math.Asin(clamp(sinAlt, -1, 1))

	y := -math.Sin(ha) * math.Cos(dec)
	x := math.Cos(lat)*math.Sin(dec) - math.Sin(lat)*math.Cos(dec)*math.Cos(ha)
	az := math.Atan2(y, x) * radToDeg
	if az < 0 {
		az += 360
	}
	return alt * radToDeg, az
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
