package auth

import (
	"golang.org/x/crypto/md4" //nolint:staticcheck // NTOWFv2 is defined over MD4, MS-NLMP 3.3.2
)

// md4Sum computes the MD4 digest required by NTOWFv2. The hash left the
// standard library long ago but NTLMv2 still keys everything off it.
func md4Sum(data []byte) []byte {
	h := md4.New()
	h.Write(data)
	return h.Sum(nil)
}
