package ofs

// Classify maps a sector to its BlockKind using the primary type tag.
// Anything that is not a header, data or list block is KindOther: boot
// code, free space and unrelated content make up most of an image.
func Classify(s Sector) BlockKind {
	if len(s.raw) < 4 {
		return KindOther
	}
	return KindOf(byteOrder.Uint32(s.raw[0:4]))
}
