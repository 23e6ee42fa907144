package serializer

// Primitive type identities map to built-in serializers; anything else
// falls back to an opaque object serializer. Go's type system resolves
// that mapping at compile time through generic instantiation rather
// than a runtime lookup table, so the registry takes the form of
// constructor functions keyed by the Go type parameter instead of a map
// keyed by a runtime type identity.

// For constructs instantiated with a concrete primitive type, these
// helpers select the matching built-in codec. Anything else should use
// OpaqueSerializer[T].

func Bool() Serializer[bool] { return BoolSerializer{} }

func Byte() Serializer[byte] { return ByteSerializer{} }

func Char() Serializer[uint16] { return CharSerializer{} }

func Int32() Serializer[int32] { return Int32Serializer{} }

func Int64() Serializer[int64] { return Int64Serializer{} }

func Float32() Serializer[float32] { return Float32Serializer{} }

func Float64() Serializer[float64] { return Float64Serializer{} }

func ByteArray() Serializer[[]byte] { return ByteArraySerializer{} }

func CharArray() Serializer[[]uint16] { return CharArraySerializer{} }

// Opaque returns the fallback serializer for any type T without a
// built-in codec above.
func Opaque[T any]() Serializer[T] { return OpaqueSerializer[T]{} }
