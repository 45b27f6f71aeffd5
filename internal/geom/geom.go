// Package geom builds the camera, light and model matrices the renderer
// uploads. Matrices are column-major mat32.Mat4 values in a left-handed
// space with depth mapped to [0, 1].
package geom

import (
	"math"

	mat32 "goki.dev/mat32/v2"
)

// Up is the world up axis.
var Up = mat32.Vec3{X: 0, Y: 1, Z: 0}

func Identity() mat32.Mat4 {
	return mat32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// at indexes m by column and row.
func at(m *mat32.Mat4, col, row int) *float32 { return &m[col*4+row] }

// Mul returns a*b.
func Mul(a, b mat32.Mat4) mat32.Mat4 {
	var m mat32.Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += a[k*4+r] * b[c*4+k]
			}
			m[c*4+r] = s
		}
	}
	return m
}

// LookAt returns the view matrix of an eye at eye looking at center.
func LookAt(eye, center, up mat32.Vec3) mat32.Mat4 {
	f := center.Sub(eye).Normal()
	s := up.Cross(f).Normal()
	u := f.Cross(s)

	m := Identity()
	*at(&m, 0, 0), *at(&m, 1, 0), *at(&m, 2, 0) = s.X, s.Y, s.Z
	*at(&m, 0, 1), *at(&m, 1, 1), *at(&m, 2, 1) = u.X, u.Y, u.Z
	*at(&m, 0, 2), *at(&m, 1, 2), *at(&m, 2, 2) = f.X, f.Y, f.Z
	*at(&m, 3, 0) = -s.Dot(eye)
	*at(&m, 3, 1) = -u.Dot(eye)
	*at(&m, 3, 2) = -f.Dot(eye)
	return m
}

// Perspective takes the vertical field of view in radians.
func Perspective(fovY, aspect, near, far float32) mat32.Mat4 {
	t := float32(math.Tan(float64(fovY) / 2))
	var m mat32.Mat4
	*at(&m, 0, 0) = 1 / (aspect * t)
	*at(&m, 1, 1) = 1 / t
	*at(&m, 2, 2) = far / (far - near)
	*at(&m, 2, 3) = 1
	*at(&m, 3, 2) = -(far * near) / (far - near)
	return m
}

func Ortho(left, right, bottom, top, near, far float32) mat32.Mat4 {
	m := Identity()
	*at(&m, 0, 0) = 2 / (right - left)
	*at(&m, 1, 1) = 2 / (top - bottom)
	*at(&m, 2, 2) = 1 / (far - near)
	*at(&m, 3, 0) = -(right + left) / (right - left)
	*at(&m, 3, 1) = -(top + bottom) / (top - bottom)
	*at(&m, 3, 2) = -near / (far - near)
	return m
}

// Clip flips Y so that clip space matches the device's downward Y axis.
func Clip() mat32.Mat4 {
	m := Identity()
	*at(&m, 1, 1) = -1
	return m
}

// ViewProj returns Clip * proj * view.
func ViewProj(proj, view mat32.Mat4) mat32.Mat4 {
	return Mul(Clip(), Mul(proj, view))
}

// FromQuat returns the rotation matrix of q.
func FromQuat(q mat32.Quat) mat32.Mat4 {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xz, xy, yz := q.X*q.Z, q.X*q.Y, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z

	m := Identity()
	*at(&m, 0, 0) = 1 - 2*(yy+zz)
	*at(&m, 0, 1) = 2 * (xy + wz)
	*at(&m, 0, 2) = 2 * (xz - wy)
	*at(&m, 1, 0) = 2 * (xy - wz)
	*at(&m, 1, 1) = 1 - 2*(xx+zz)
	*at(&m, 1, 2) = 2 * (yz + wx)
	*at(&m, 2, 0) = 2 * (xz + wy)
	*at(&m, 2, 1) = 2 * (yz - wx)
	*at(&m, 2, 2) = 1 - 2*(xx+yy)
	return m
}

// Translate post-multiplies m by a translation of v.
func Translate(m mat32.Mat4, v mat32.Vec3) mat32.Mat4 {
	for r := 0; r < 4; r++ {
		*at(&m, 3, r) = m[r]*v.X + m[4+r]*v.Y + m[8+r]*v.Z + m[12+r]
	}
	return m
}

// World returns the model matrix of an entity: rotation first, then the
// translation applied in the rotated frame.
func World(rot *mat32.Quat, pos *mat32.Vec3) mat32.Mat4 {
	m := Identity()
	if rot != nil {
		m = FromQuat(*rot)
	}
	if pos != nil {
		m = Translate(m, *pos)
	}
	return m
}

// Rotate turns v by angle radians around axis.
func Rotate(v mat32.Vec3, angle float32, axis mat32.Vec3) mat32.Vec3 {
	k := axis.Normal()
	sin, cos := math.Sincos(float64(angle))
	s, c := float32(sin), float32(cos)
	return v.MulScalar(c).
		Add(k.Cross(v).MulScalar(s)).
		Add(k.MulScalar(k.Dot(v) * (1 - c)))
}

// TransformPoint returns m*(p, 1) after the perspective divide.
func TransformPoint(m mat32.Mat4, p mat32.Vec3) mat32.Vec3 {
	x := m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12]
	y := m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13]
	z := m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14]
	w := m[3]*p.X + m[7]*p.Y + m[11]*p.Z + m[15]
	if w != 0 && w != 1 {
		x, y, z = x/w, y/w, z/w
	}
	return mat32.Vec3{X: x, Y: y, Z: z}
}

// Bytes returns m's sixteen floats as raw little-endian data.
func Bytes(m mat32.Mat4) []byte {
	out := make([]byte, 0, 64)
	for _, f := range m {
		b := math.Float32bits(f)
		out = append(out, byte(b), byte(b>>8), byte(b>>16), byte(b>>24))
	}
	return out
}
