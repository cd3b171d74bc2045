package hashfunction_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shardman/pkg/models/hashfunction"
)

func TestEncodeUInt64(t *testing.T) {
	tests := []struct {
		name     string
		inp      uint64
		expected []byte
	}{
		{"Zero value", 0, []byte{0, 0, 0, 0, 0, 0, 0, 0}},
		{"Power of two: 2^7", 128, []byte{128, 1, 0, 0, 0, 0, 0, 0}},
		{"Arbitrary number: 12345", 12345, []byte{185, 96, 0, 0, 0, 0, 0, 0}},
		{"Maximum 56-bit - 1 value", 1<<56 - 1, []byte{255, 255, 255, 255, 255, 255, 255, 127}},
		{"56-bit boundary", 1 << 56, []byte{128, 128, 128, 128, 128, 128, 128, 128, 1, 0}},
		{"Large number: 2^64 - 1", (1 << 64) - 1, []byte{255, 255, 255, 255, 255, 255, 255, 255, 255, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := hashfunction.EncodeUInt64(tt.inp)
			assert.Equal(t, tt.expected, result, "Test '%s': EncodeUInt64 should produce the expected result", tt.name)
		})
	}
}

func TestIntegerKeysHashAlike(t *testing.T) {
	assert := assert.New(t)

	for _, hf := range []hashfunction.HashFunctionType{hashfunction.HashFunctionMurmur, hashfunction.HashFunctionCity} {
		want, err := hashfunction.ApplyHashFunction(int64(42), hf)
		assert.NoError(err)

		for _, k := range []any{42, uint64(42), float64(42), json.Number("42")} {
			got, err := hashfunction.ApplyHashFunction(k, hf)
			assert.NoError(err)
			assert.Equal(want, got, "%T with %s", k, hashfunction.ToString(hf))
		}
	}
}

func TestBucketIDRange(t *testing.T) {
	assert := assert.New(t)

	for _, key := range []any{"alice", "bob", []byte("carol"), int64(-1), uint64(1 << 60)} {
		id, err := hashfunction.BucketID(key, hashfunction.HashFunctionMurmur, 3000)
		assert.NoError(err)
		assert.GreaterOrEqual(id, uint64(1))
		assert.LessOrEqual(id, uint64(3000))

		again, err := hashfunction.BucketID(key, hashfunction.HashFunctionMurmur, 3000)
		assert.NoError(err)
		assert.Equal(id, again)
	}

	_, err := hashfunction.BucketID("alice", hashfunction.HashFunctionCity, 0)
	assert.Error(err)
}

func TestBucketIDIdentity(t *testing.T) {
	assert := assert.New(t)

	id, err := hashfunction.BucketID("17", hashfunction.HashFunctionIdent, 100)
	assert.NoError(err)
	assert.Equal(uint64(17), id)

	_, err = hashfunction.BucketID(uint64(0), hashfunction.HashFunctionIdent, 100)
	assert.Error(err)
	_, err = hashfunction.BucketID(uint64(101), hashfunction.HashFunctionIdent, 100)
	assert.Error(err)
	_, err = hashfunction.BucketID("abc", hashfunction.HashFunctionIdent, 100)
	assert.Error(err)
}

func TestUnsupportedKey(t *testing.T) {
	assert := assert.New(t)

	_, err := hashfunction.ApplyHashFunction(struct{}{}, hashfunction.HashFunctionMurmur)
	assert.Error(err)
	_, err = hashfunction.ApplyHashFunction(1.5, hashfunction.HashFunctionCity)
	assert.Error(err)
	_, err = hashfunction.ApplyHashFunction("x", hashfunction.HashFunctionType(9))
	assert.Error(err)
}

func TestHashFunctionByName(t *testing.T) {
	assert := assert.New(t)

	for _, hf := range []hashfunction.HashFunctionType{
		hashfunction.HashFunctionIdent, hashfunction.HashFunctionMurmur, hashfunction.HashFunctionCity,
	} {
		got, err := hashfunction.HashFunctionByName(hashfunction.ToString(hf))
		assert.NoError(err)
		assert.Equal(hf, got)
	}

	got, err := hashfunction.HashFunctionByName("")
	assert.NoError(err)
	assert.Equal(hashfunction.HashFunctionMurmur, got)

	_, err = hashfunction.HashFunctionByName("sha1")
	assert.Error(err)
}
