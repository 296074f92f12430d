// Package launcher is the opaque payload launcher spec.md §6 describes:
// given credentials, cgroup attachments, bind mounts and rlimits, forks
// and execs the user process and reports its pid back. The core treats
// it strictly as Launch(Spec) (pid int, err error) and never inspects
// namespace internals.
//
// Grounded directly on the teacher's own
// pkg/container/container_process.go (NewParentProcess: self re-exec via
// /proc/self/exe, syscall.SysProcAttr.Cloneflags, a pipe for passing
// config to the child) and pkg/container/init.go (RunContainerInitProcess:
// private-mount the root, mount /proc, syscall.Exec to replace the init
// shim with the real payload) — scaled from a single hard-coded
// "init"/"exec" pair to a config-driven Spec passed over the pipe as
// JSON, and from docker-archive-libcontainer/namespaces/init.go's
// Pdeathsig idiom.
package launcher

import (
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/oceanweave/portod/pkg/credential"
	"github.com/oceanweave/portod/pkg/errkind"
	"github.com/oceanweave/portod/pkg/value"
)

// reExecArg is the hidden subcommand cmd/portod dispatches to RunInit,
// the way the teacher's main.go dispatches its own "init" subcommand.
const reExecArg = "launcher-init"

// Spec is everything Start derives from a container's properties and
// hands to the launcher — the Go stand-in for what original_source's
// TTask::Start builds from TPropertyHolder before forking.
type Spec struct {
	Command    string
	Cwd        string
	Root       string
	Hostname   string
	Credential credential.Credential
	Env        []string
	Isolate    bool
	Rlimits    map[string]value.Rlimit
	Binds      []value.BindMount
}

// Launch forks and execs the payload described by spec, returning its
// pid. The child re-execs this same binary with the hidden
// "launcher-init" argument; Spec is passed over an anonymous pipe as
// JSON, matching the teacher's os.Pipe()+ExtraFiles idiom.
func Launch(spec Spec) (int, error) {
	readPipe, writePipe, err := os.Pipe()
	if err != nil {
		return 0, errkind.Wrap(errkind.Unknown, err, "open launcher pipe")
	}
	defer readPipe.Close()

	self, err := os.Executable()
	if err != nil {
		return 0, errkind.Wrap(errkind.Unknown, err, "resolve self executable")
	}

	cmd := exec.Command(self, reExecArg)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{readPipe}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: cloneFlags(spec.Isolate),
		Pdeathsig:  syscall.SIGKILL,
	}

	if err := cmd.Start(); err != nil {
		writePipe.Close()
		return 0, errkind.Wrap(errkind.Unknown, err, "start payload process")
	}
	readPipe.Close()

	enc := json.NewEncoder(writePipe)
	encErr := enc.Encode(spec)
	writePipe.Close()
	if encErr != nil {
		_ = cmd.Process.Kill()
		return 0, errkind.Wrap(errkind.Unknown, encErr, "write launcher spec to pipe")
	}

	return cmd.Process.Pid, nil
}

func cloneFlags(isolate bool) uintptr {
	flags := uintptr(syscall.CLONE_NEWUTS | syscall.CLONE_NEWPID | syscall.CLONE_NEWNS | syscall.CLONE_NEWIPC)
	if isolate {
		flags |= syscall.CLONE_NEWNET
	}
	return flags
}

// RunInit is the child-side entrypoint cmd/portod dispatches to when
// argv[1] == "launcher-init". It reads the Spec passed over fd 3, sets
// up the payload's view of the world, and syscall.Execs the real
// command — replacing this process's image the same way
// RunContainerInitProcess does.
func RunInit() error {
	pipe := os.NewFile(3, "launcher-pipe")
	var spec Spec
	if err := json.NewDecoder(pipe).Decode(&spec); err != nil {
		return errkind.Wrap(errkind.Unknown, err, "decode launcher spec")
	}
	pipe.Close()

	// systemd makes the root mount shared by default; without this the
	// child's namespace isn't actually private, per the teacher's own
	// fix in init.go.
	if err := syscall.Mount("", "/", "", syscall.MS_PRIVATE|syscall.MS_REC, ""); err != nil {
		return errkind.Wrap(errkind.Unknown, err, "make mount namespace private")
	}

	for _, b := range spec.Binds {
		if err := bindMount(b); err != nil {
			return err
		}
	}
	if spec.Root != "" && spec.Root != "/" {
		if err := syscall.Chroot(spec.Root); err != nil {
			return errkind.Wrapf(errkind.Unknown, err, "chroot to %s", spec.Root)
		}
	}

	defaultMountFlags := uintptr(syscall.MS_NOEXEC | syscall.MS_NOSUID | syscall.MS_NODEV)
	if err := syscall.Mount("proc", "/proc", "proc", defaultMountFlags, ""); err != nil {
		return errkind.Wrap(errkind.Unknown, err, "mount /proc")
	}

	if spec.Hostname != "" {
		if err := syscall.Sethostname([]byte(spec.Hostname)); err != nil {
			return errkind.Wrapf(errkind.Unknown, err, "set hostname %s", spec.Hostname)
		}
	}

	if spec.Cwd != "" {
		if err := syscall.Chdir(spec.Cwd); err != nil {
			return errkind.Wrapf(errkind.Unknown, err, "chdir to %s", spec.Cwd)
		}
	}

	for name, rl := range spec.Rlimits {
		if err := applyRlimit(name, rl); err != nil {
			return err
		}
	}

	if spec.Credential.Uid != 0 || spec.Credential.Gid != 0 {
		if err := syscall.Setgid(int(spec.Credential.Gid)); err != nil {
			return errkind.Wrap(errkind.Unknown, err, "setgid")
		}
		if err := syscall.Setuid(int(spec.Credential.Uid)); err != nil {
			return errkind.Wrap(errkind.Unknown, err, "setuid")
		}
	}

	argv := strings.Fields(spec.Command)
	if len(argv) == 0 {
		return errkind.New(errkind.InvalidValue, "empty payload command")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return errkind.Wrapf(errkind.InvalidValue, err, "resolve payload command %q", argv[0])
	}
	return syscall.Exec(path, argv, os.Environ())
}

func bindMount(b value.BindMount) error {
	flags := uintptr(syscall.MS_BIND)
	if err := syscall.Mount(b.Source, b.Dest, "", flags, ""); err != nil {
		return errkind.Wrapf(errkind.Unknown, err, "bind mount %s -> %s", b.Source, b.Dest)
	}
	if b.ReadOnly {
		if err := syscall.Mount(b.Source, b.Dest, "", flags|syscall.MS_REMOUNT|syscall.MS_RDONLY, ""); err != nil {
			return errkind.Wrapf(errkind.Unknown, err, "remount %s read-only", b.Dest)
		}
	}
	return nil
}

// rlimitNproc is Linux's RLIMIT_NPROC, not exposed by the stdlib syscall
// package on this platform.
const rlimitNproc = 0x6

func rlimitResource(name string) (int, bool) {
	switch strings.ToUpper(name) {
	case "NOFILE":
		return syscall.RLIMIT_NOFILE, true
	case "NPROC":
		return rlimitNproc, true
	case "CORE":
		return syscall.RLIMIT_CORE, true
	case "FSIZE":
		return syscall.RLIMIT_FSIZE, true
	default:
		return 0, false
	}
}

func applyRlimit(name string, rl value.Rlimit) error {
	resource, ok := rlimitResource(name)
	if !ok {
		return errkind.Newf(errkind.InvalidValue, "unknown rlimit resource %q", name)
	}
	lim := syscall.Rlimit{Cur: rl.Soft, Max: rl.Hard}
	if err := syscall.Setrlimit(resource, &lim); err != nil {
		return errkind.Wrapf(errkind.Unknown, err, "setrlimit %s=%d:%d", name, rl.Soft, rl.Hard)
	}
	return nil
}

// IsReExec reports whether argv[1] selects the launcher's hidden
// re-exec entrypoint, for cmd/portod's dispatch.
func IsReExec(args []string) bool {
	return len(args) > 1 && args[1] == reExecArg
}
