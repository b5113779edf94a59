package main

import "fmt"

// subjectPublicKey extracts the raw SubjectPublicKey bytes from a DER
// SubjectPublicKeyInfo. MS-CSSP binds CredSSP's pubKeyAuth against the
// inner BIT STRING content (the bare RSAPublicKey SEQUENCE), not the
// whole SubjectPublicKeyInfo:
//
//	SubjectPublicKeyInfo ::= SEQUENCE {
//	  algorithm        AlgorithmIdentifier,
//	  subjectPublicKey BIT STRING
//	}
func subjectPublicKey(spki []byte) ([]byte, error) {
	if len(spki) < 4 {
		return nil, fmt.Errorf("pubkey: SubjectPublicKeyInfo too short")
	}
	if spki[0] != 0x30 {
		return nil, fmt.Errorf("pubkey: expected SEQUENCE tag, got %#02x", spki[0])
	}

	offset := 1
	seqLen, lenBytes, err := derLength(spki[offset:])
	if err != nil {
		return nil, err
	}
	offset += lenBytes
	if seqLen == 0 || offset+seqLen > len(spki) {
		return nil, fmt.Errorf("pubkey: invalid SubjectPublicKeyInfo length")
	}

	// Skip AlgorithmIdentifier.
	if spki[offset] != 0x30 {
		return nil, fmt.Errorf("pubkey: expected AlgorithmIdentifier SEQUENCE, got %#02x", spki[offset])
	}
	algLen, algLenBytes, err := derLength(spki[offset+1:])
	if err != nil {
		return nil, err
	}
	offset += 1 + algLenBytes + algLen

	if offset >= len(spki) || spki[offset] != 0x03 {
		return nil, fmt.Errorf("pubkey: expected BIT STRING tag")
	}
	offset++

	bitLen, bitLenBytes, err := derLength(spki[offset:])
	if err != nil {
		return nil, err
	}
	offset += bitLenBytes
	if bitLen < 1 || offset+bitLen > len(spki) {
		return nil, fmt.Errorf("pubkey: BIT STRING out of bounds")
	}

	// Drop the unused-bits octet.
	return spki[offset+1 : offset+bitLen], nil
}

// derLength reads a DER length field, returning the length value and
// how many bytes encoded it.
func derLength(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("pubkey: truncated length")
	}
	b := data[0]
	if b < 0x80 {
		return int(b), 1, nil
	}
	n := int(b & 0x7F)
	if n == 0 || n > 4 || len(data) < 1+n {
		return 0, 0, fmt.Errorf("pubkey: unsupported length encoding")
	}
	length := 0
	for i := 1; i <= n; i++ {
		length = length<<8 | int(data[i])
	}
	return length, 1 + n, nil
}
