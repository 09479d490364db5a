// Package jarshade relocates Java packages inside JAR archives so that a
// bundled copy of a library cannot clash with another copy on the same
// class path.
//
// Relocation prepends a target prefix to every internal type name that
// either is defined by the archive being shaded or lives under one of the
// configured roots. The rename is applied consistently to class entry
// names, to every reference in each class's constant pool and attributes,
// to string constants spelled like a rooted internal name, and to
// path-shaped resources. META-INF/ entries are never renamed.
//
// # Quick Start
//
// Shade ASM into a plugin namespace:
//
//	s, err := jarshade.New(jarshade.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	res, err := s.ShadeFile(ctx, "libs/asm-9.7.jar", "build/libs")
//	// res.Output == "build/libs/asm-9.7-repackaged.jar"
//
// Several archives are shaded independently with [Shader.ShadeAll]. Output
// is written to a temporary file and renamed into place only on success, so
// a failed archive never leaves a partial output behind.
//
// # Determinism
//
// Entries keep their input order, timestamps, comments and storage
// method. The same input and [Config] always produce byte-identical
// output, which makes shaded archives cacheable by digest.
//
// # Caching
//
// Use [WithCache] to skip work for inputs that were already shaded under
// the same configuration:
//
//	c, err := disk.New("/var/cache/jarshade", disk.WithMaxBytes(1<<30))
//	if err != nil {
//	    return err
//	}
//	s, err := jarshade.New(cfg, jarshade.WithCache(c))
package jarshade
