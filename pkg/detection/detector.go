// Package detection provides the person-detection types consumed by the
// queue estimator and produced by the vision backends.
package detection

// Box is an axis-aligned bounding box in frame pixels.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Center returns the center point of the box
func (b Box) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Width of the box (never negative).
func (b Box) Width() float64 {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height of the box (never negative).
func (b Box) Height() float64 {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Area returns the area of the bounding box
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// IoU returns the intersection-over-union of two boxes in [0,1].
func (b Box) IoU(o Box) float64 {
	inter := Box{
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
		X2: min(b.X2, o.X2),
		Y2: min(b.Y2, o.Y2),
	}.Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one observed object in one frame.
type Detection struct {
	Box        Box
	Confidence float64 // Detection confidence (0-1)
	ClassID    int     // COCO class ID
}

// ClassName returns the COCO name for the detection's class, or "" if unknown.
func (d Detection) ClassName() string {
	if d.ClassID < 0 || d.ClassID >= len(COCOClasses) {
		return ""
	}
	return COCOClasses[d.ClassID]
}

// Predicate decides whether a detection counts toward the queue.
type Predicate func(Detection) bool

// PersonClassID is "person" in COCO.
const PersonClassID = 0

// Persons accepts person detections at or above minConfidence.
func Persons(minConfidence float64) Predicate {
	return func(d Detection) bool {
		return d.ClassID == PersonClassID && d.Confidence >= minConfidence
	}
}

// Filter returns the detections accepted by keep. A nil predicate keeps all.
func Filter(dets []Detection, keep Predicate) []Detection {
	if keep == nil {
		return dets
	}
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
