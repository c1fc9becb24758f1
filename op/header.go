package op

// Image header.
const (
	NameLength    = 128
	CommentLength = 2048
	ImageMagic    = 0x3b17c0de // "3 bit code".
	ImageExt      = ".3b"
	ConfigExt     = ".toml"
)

// HeaderFieldsValid reports whether the name and comment fit
// in the image header.
func HeaderFieldsValid(name, comment string) bool {
	return len(name) <= NameLength && len(comment) <= CommentLength
}
