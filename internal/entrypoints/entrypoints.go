// Package entrypoints holds the default set of JVM bootstrap entry
// points the CLI always seeds RTA with, plus a way to append
// application-specific ones (the CLI's repeated -entry flag).
package entrypoints

import "github.com/vantage-dev/jvmrta/pkg/rta"

// Default is the bootstrap call set every JVM process reaches before
// user code runs: the class loader's own static initializer path, the
// thread group/System startup sequence, and the convention every
// command-line program provides, main([Ljava/lang/String;)V, which a
// caller's own entry class is still expected to append via Append.
var Default = []rta.MethodKey{
	{Class: "java/lang/Object", Name: "<clinit>", Desc: "()V"},
	{Class: "java/lang/System", Name: "<clinit>", Desc: "()V"},
	{Class: "java/lang/System", Name: "initializeSystemClass", Desc: "()V"},
	{Class: "java/lang/ThreadGroup", Name: "<clinit>", Desc: "()V"},
	{Class: "java/lang/Thread", Name: "<clinit>", Desc: "()V"},
	{Class: "java/lang/ref/Finalizer", Name: "<clinit>", Desc: "()V"},
	{Class: "java/lang/Class", Name: "<clinit>", Desc: "()V"},
	{Class: "java/lang/OutOfMemoryError", Name: "<clinit>", Desc: "()V"},
	{Class: "java/lang/System", Name: "initPhase1", Desc: "()V"},
	{Class: "java/lang/Object", Name: "<init>", Desc: "()V"},
	{Class: "java/lang/Thread", Name: "run", Desc: "()V"},
}

// Append parses a "pkg/Class#method(desc)" string, as produced by the
// CLI's -entry flag, and appends it to base.
func Append(base []rta.MethodKey, raw string) ([]rta.MethodKey, error) {
	key, err := Parse(raw)
	if err != nil {
		return base, err
	}
	return append(base, key), nil
}

// MainMethod builds the conventional entry point of a class with a
// public static void main(String[]) method.
func MainMethod(class string) rta.MethodKey {
	return rta.MethodKey{Class: class, Name: "main", Desc: "([Ljava/lang/String;)V"}
}
