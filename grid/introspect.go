package grid

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"github.com/sarchlab/mgsim/core"
	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/threadtable"
)

// Component returns a named component for inspection (spec.md §6
// "Introspection: read any named component").
func (s *Simulator) Component(path string) (any, bool) {
	c, ok := s.components[path]
	return c, ok
}

// ComponentNames lists every registered component path.
func (s *Simulator) ComponentNames() []string {
	names := make([]string, 0, len(s.components))
	for n := range s.components {
		names = append(names, n)
	}
	return names
}

// DumpStorage renders a named storage as a table (spec.md §6: "dump
// any named storage"). Recognized suffixes: .Families, .Threads.
func (s *Simulator) DumpStorage(path string) (string, error) {
	dot := strings.LastIndex(path, ".")
	if dot < 0 {
		return "", errors.Errorf("storage path %q has no component prefix", path)
	}
	comp, ok := s.components[path[:dot]]
	if !ok {
		return "", errors.Errorf("no component %q", path[:dot])
	}
	c, ok := comp.(*core.Core)
	if !ok {
		return "", errors.Errorf("component %q has no dumpable storages", path[:dot])
	}

	switch path[dot+1:] {
	case "Families":
		return dumpFamilies(c.Families), nil
	case "Threads":
		return dumpThreads(c.Threads), nil
	default:
		return "", errors.Errorf("unknown storage %q", path[dot+1:])
	}
}

func dumpFamilies(t *familytable.Table) string {
	w := table.NewWriter()
	w.AppendHeader(table.Row{"FID", "State", "PC", "Threads", "Cores", "AllocDone", "Synced", "Detached"})
	for fid := ids.FamilyID(0); int(fid) < t.Size(); fid++ {
		f := t.Get(fid)
		if f.State == familytable.Empty {
			continue
		}
		w.AppendRow(table.Row{
			fid, f.State.String(), f.PC,
			f.Dep.NumThreadsAllocated, f.NumCores,
			f.Dep.AllocationDone, f.Dep.SyncSent, f.Dep.Detached,
		})
	}
	return w.Render()
}

func dumpThreads(t *threadtable.Table) string {
	w := table.NewWriter()
	w.AppendHeader(table.Row{"TID", "State", "Family", "PC", "Killed", "PendingWrites"})
	for tid := ids.ThreadID(0); int(tid) < t.Size(); tid++ {
		th := t.Get(tid)
		if th.State == threadtable.Empty {
			continue
		}
		w.AppendRow(table.Row{
			tid, th.State.String(), th.Family, th.PC,
			th.Dep.Killed, th.Dep.PendingWrites,
		})
	}
	return w.Render()
}

// SetVariable sets a named exported field by object path (spec.md §6:
// "set any named variable by path"), e.g.
// "Grid.Core0.SomeField.Sub=value". Only integer, boolean, and string
// leaves are settable.
func (s *Simulator) SetVariable(path, value string) error {
	var comp any
	rest := ""
	for prefix := path; ; {
		dot := strings.LastIndex(prefix, ".")
		if dot < 0 {
			return errors.Errorf("no component on path %q", path)
		}
		if c, ok := s.components[prefix[:dot]]; ok {
			comp = c
			rest = path[dot+1:]
			break
		}
		prefix = prefix[:dot]
	}

	v := reflect.ValueOf(comp)
	for _, field := range strings.Split(rest, ".") {
		for v.Kind() == reflect.Pointer {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return errors.Errorf("%q is not a struct on path %q", field, path)
		}
		v = v.FieldByName(field)
		if !v.IsValid() {
			return errors.Errorf("no field %q on path %q", field, path)
		}
	}
	if !v.CanSet() {
		return errors.Errorf("field at %q is not settable", path)
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return errors.Wrap(err, "expected an integer")
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return errors.Wrap(err, "expected an unsigned integer")
		}
		v.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrap(err, "expected a boolean")
		}
		v.SetBool(b)
	case reflect.String:
		v.SetString(value)
	default:
		return errors.Errorf("field at %q has unsupported kind %s", path, v.Kind())
	}
	return nil
}
