package generic

// Void is a zero-size placeholder value, for use where a type parameter is required but no value is meaningful.
type Void struct{}

func NewVoid() Void {
	return Void{}
}
