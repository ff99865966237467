// Package models - Class label tables and label resolution for detector outputs.
package models

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is an ordered list of labels indexed by class id.
type OutputClassSet struct {
	// Name identifies the set in logs.
	Name string
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// NameOf returns the label for idx and whether idx is in range.
func (s *OutputClassSet) NameOf(idx int) (string, bool) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", false
	}
	return s.Classes[idx].Name, true
}

// IndexOf returns the class index for a label and whether it exists.
func (s *OutputClassSet) IndexOf(name string) (int, bool) {
	if s.nameToIdx == nil {
		s.BuildNameIndexMap()
	}
	idx, ok := s.nameToIdx[name]
	return idx, ok
}

// Names returns the labels in index order.
func (s *OutputClassSet) Names() []string {
	out := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		out[i] = c.Name
	}
	return out
}

// COCOClasses is the built-in dictionary: the 80 COCO classes, zero-based, as
// emitted by YOLO family detectors trained on COCO.
var COCOClasses = OutputClassSet{
	Name: "coco",
	Classes: []OutputClass{
		{0, "person"},
		{1, "bicycle"},
		{2, "car"},
		{3, "motorcycle"},
		{4, "airplane"},
		{5, "bus"},
		{6, "train"},
		{7, "truck"},
		{8, "boat"},
		{9, "traffic light"},
		{10, "fire hydrant"},
		{11, "stop sign"},
		{12, "parking meter"},
		{13, "bench"},
		{14, "bird"},
		{15, "cat"},
		{16, "dog"},
		{17, "horse"},
		{18, "sheep"},
		{19, "cow"},
		{20, "elephant"},
		{21, "bear"},
		{22, "zebra"},
		{23, "giraffe"},
		{24, "backpack"},
		{25, "umbrella"},
		{26, "handbag"},
		{27, "tie"},
		{28, "suitcase"},
		{29, "frisbee"},
		{30, "skis"},
		{31, "snowboard"},
		{32, "sports ball"},
		{33, "kite"},
		{34, "baseball bat"},
		{35, "baseball glove"},
		{36, "skateboard"},
		{37, "surfboard"},
		{38, "tennis racket"},
		{39, "bottle"},
		{40, "wine glass"},
		{41, "cup"},
		{42, "fork"},
		{43, "knife"},
		{44, "spoon"},
		{45, "bowl"},
		{46, "banana"},
		{47, "apple"},
		{48, "sandwich"},
		{49, "orange"},
		{50, "broccoli"},
		{51, "carrot"},
		{52, "hot dog"},
		{53, "pizza"},
		{54, "donut"},
		{55, "cake"},
		{56, "chair"},
		{57, "couch"},
		{58, "potted plant"},
		{59, "bed"},
		{60, "dining table"},
		{61, "toilet"},
		{62, "tv"},
		{63, "laptop"},
		{64, "mouse"},
		{65, "remote"},
		{66, "keyboard"},
		{67, "cell phone"},
		{68, "microwave"},
		{69, "oven"},
		{70, "toaster"},
		{71, "sink"},
		{72, "refrigerator"},
		{73, "book"},
		{74, "clock"},
		{75, "vase"},
		{76, "scissors"},
		{77, "teddy bear"},
		{78, "hair drier"},
		{79, "toothbrush"},
	},
}
