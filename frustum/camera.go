package frustum

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/culling/utils"
)

// CameraPosition returns the eye position encoded in a view matrix.
func CameraPosition(view mgl64.Mat4) (r3.Vector, error) {
	det := view.Det()
	if !utils.IsFinite(det) || math.Abs(det) < minNormalLength {
		return r3.Vector{}, errors.Wrap(ErrDegenerateMatrix, "view matrix is not invertible")
	}
	inv := view.Inv()
	return r3.Vector{X: inv[12], Y: inv[13], Z: inv[14]}, nil
}

// Perspective returns a projection matrix with a vertical field of view of fovY degrees.
func Perspective(fovY, aspect, near, far float64) (mgl64.Mat4, error) {
	switch {
	case fovY <= 0 || fovY >= 180:
		return mgl64.Mat4{}, errors.Errorf("field of view must be in (0, 180) degrees, got %.2f", fovY)
	case aspect <= 0:
		return mgl64.Mat4{}, errors.Errorf("aspect ratio must be positive, got %.2f", aspect)
	case near <= 0 || far <= near:
		return mgl64.Mat4{}, errors.Errorf("clip planes must satisfy 0 < near < far, got near %.2f far %.2f", near, far)
	}
	return mgl64.Perspective(utils.DegToRad(fovY), aspect, near, far), nil
}

// LookAt returns the view matrix of a camera at eye looking toward target.
func LookAt(eye, target, up r3.Vector) mgl64.Mat4 {
	return mgl64.LookAtV(toVec3(eye), toVec3(target), toVec3(up))
}

func toVec3(v r3.Vector) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}
