package common

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var AllKinds = []Kind{KindImage, KindVideo}

func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}
