// Package syscalltab is a fixed mapping from a language-level syscall
// name (as spelled after the leading '$' in source, e.g. "$write") to
// its Linux/x86 (ia32) syscall number. Both the lexer (for its
// longest-match rule) and the code generator (for the numeric code
// emitted into eax) consult it.
package syscalltab

// Table is the fixed syscall-name -> number mapping. Names are
// spelled without the leading '$' that the SYSCALL token's literal
// keeps; Lookup strips it.
var Table = map[string]int{
	"exit":       1,
	"fork":       2,
	"read":       3,
	"write":      4,
	"open":       5,
	"close":      6,
	"waitpid":    7,
	"creat":      8,
	"link":       9,
	"unlink":     10,
	"execve":     11,
	"chdir":      12,
	"time":       13,
	"mknod":      14,
	"chmod":      15,
	"lchown":     16,
	"lseek":      19,
	"getpid":     20,
	"mount":      21,
	"umount":     22,
	"setuid":     23,
	"getuid":     24,
	"pause":      29,
	"access":     33,
	"kill":       37,
	"rename":     38,
	"mkdir":      39,
	"rmdir":      40,
	"dup":        41,
	"pipe":       42,
	"brk":        45,
	"signal":     48,
	"ioctl":      54,
	"fcntl":      55,
	"dup2":       63,
	"getppid":    64,
	"sigaction":  67,
	"mmap":       90,
	"munmap":     91,
	"truncate":   92,
	"ftruncate":  93,
	"socketcall": 102,
	"stat":       106,
	"fstat":      108,
	"wait4":      114,
	"mmap2":      192,
	"stat64":     195,
	"fstat64":    197,
	"getdents64": 220,
	"exit_group": 252,
}

// Lookup returns the syscall number for a "$name"-spelled token
// literal, e.g. Lookup("$write"). ok is false for unknown names or
// literals that don't start with '$'.
func Lookup(dollarName string) (number int, ok bool) {
	if len(dollarName) == 0 || dollarName[0] != '$' {
		return 0, false
	}
	n, ok := Table[dollarName[1:]]
	return n, ok
}

// Names returns the bare (no leading '$') syscall names, longest
// first, so a caller building a longest-match alternation regex never
// has a short name shadow a longer one that shares its prefix (e.g.
// "read" vs. "readv" would not collide here, but "stat" vs. "stat64"
// does).
func Names() []string {
	names := make([]string, 0, len(Table))
	for name := range Table {
		names = append(names, name)
	}
	// insertion sort by decreasing length; the table is small and
	// this keeps the dependency surface to the standard library.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && len(names[j]) > len(names[j-1]); j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
