package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternerField(t *testing.T) {
	cases := []struct {
		name  string
		descr string
		want  Kind
	}{
		{"int", "I", KindPrimitive},
		{"long", "J", KindPrimitive},
		{"object", "Ljava/lang/String;", KindObject},
		{"array of int", "[I", KindArray},
		{"array of object", "[Ljava/lang/Object;", KindArray},
		{"nested array", "[[I", KindArray},
	}
	in := NewInterner()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			typ, err := in.Field(tc.descr)
			require.NoError(t, err)
			require.Equal(t, tc.want, typ.Kind)
			require.Equal(t, tc.descr, typ.String())
		})
	}
}

func TestInternerFieldRejectsMalformed(t *testing.T) {
	in := NewInterner()
	_, err := in.Field("Ljava/lang/String") // missing trailing ';'
	require.Error(t, err)

	_, err = in.Field("Q")
	require.Error(t, err)
}

func TestInternerReturnsSamePointer(t *testing.T) {
	in := NewInterner()
	a, err := in.Field("Ljava/lang/String;")
	require.NoError(t, err)
	b, err := in.Field("Ljava/lang/String;")
	require.NoError(t, err)
	require.Same(t, a, b)

	arrA := in.ArrayOf(a)
	arrB, err := in.Field("[Ljava/lang/String;")
	require.NoError(t, err)
	require.Same(t, arrA, arrB)
}

func TestInternerMethod(t *testing.T) {
	in := NewInterner()
	sig, err := in.Method("(ILjava/lang/String;)V")
	require.NoError(t, err)
	require.Len(t, sig.Params, 2)
	require.Equal(t, KindPrimitive, sig.Params[0].Kind)
	require.Equal(t, KindObject, sig.Params[1].Kind)
	require.Equal(t, KindVoid, sig.Return.Kind)

	sig2, err := in.Method("()I")
	require.NoError(t, err)
	require.Empty(t, sig2.Params)
	require.Equal(t, KindPrimitive, sig2.Return.Kind)
	require.Equal(t, Int, sig2.Return.Primitive)
}

func TestInternerMethodRejectsMalformed(t *testing.T) {
	in := NewInterner()
	_, err := in.Method("ILjava/lang/String;)V") // missing leading '('
	require.Error(t, err)

	_, err = in.Method("(I")
	require.Error(t, err)
}

func TestCategory2(t *testing.T) {
	in := NewInterner()
	long, _ := in.Field("J")
	dbl, _ := in.Field("D")
	i, _ := in.Field("I")

	require.True(t, long.Category2())
	require.True(t, dbl.Category2())
	require.False(t, i.Category2())
}
