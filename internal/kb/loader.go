package kb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/constraint"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/quantity"
	"github.com/nvandessel/qualsim/internal/transition"
)

type source struct {
	file string
	doc  fileDoc
}

// Load reads the given files and directories (every *.yaml and *.yml file
// directly inside them) into one knowledge base. Entries may reference
// entries of other files. Any problem is returned as a *LoadError.
func Load(paths ...string) (*KnowledgeBase, error) {
	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}
	var sources []source
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, &LoadError{File: f, Kind: KindFile, Err: err}
		}
		docs, err := decode(f, data)
		if err != nil {
			return nil, err
		}
		sources = append(sources, docs...)
	}
	return build(files, sources)
}

// Parse builds a knowledge base from a single in-memory document. name is
// used in errors.
func Parse(name string, data []byte) (*KnowledgeBase, error) {
	docs, err := decode(name, data)
	if err != nil {
		return nil, err
	}
	return build([]string{name}, docs)
}

// LoadDirs loads the kb subdirectory of each data directory. Missing kb
// directories are skipped; it is an error when none exists.
func LoadDirs(dataDirs []string) (*KnowledgeBase, error) {
	var paths []string
	for _, d := range dataDirs {
		kbDir := filepath.Join(d, constants.KBDirName)
		if info, err := os.Stat(kbDir); err == nil && info.IsDir() {
			paths = append(paths, kbDir)
		}
	}
	if len(paths) == 0 {
		return nil, &LoadError{Kind: KindFile, Err: fmt.Errorf("no %s directory found in %s", constants.KBDirName, strings.Join(dataDirs, ", "))}
	}
	return Load(paths...)
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &LoadError{File: p, Kind: KindFile, Err: err}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, &LoadError{File: p, Kind: KindFile, Err: err}
		}
		var found []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			found = append(found, filepath.Join(p, e.Name()))
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, &LoadError{Kind: KindFile, Err: errors.New("no knowledge base files found")}
	}
	return files, nil
}

// decode reads every YAML document of a file. Unknown keys are rejected.
func decode(file string, data []byte) ([]source, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var out []source
	for {
		var doc fileDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &LoadError{File: file, Kind: KindFile, Err: err}
		}
		if err := validate.Struct(doc); err != nil {
			return nil, &LoadError{File: file, Kind: KindFile, Err: err}
		}
		out = append(out, source{file: file, doc: doc})
	}
	return out, nil
}

// build resolves references across all sources. Spaces are registered
// first, then types, then actions and scenarios.
func build(files []string, sources []source) (*KnowledgeBase, error) {
	k := newKnowledgeBase()
	k.files = files

	for _, src := range sources {
		for _, d := range src.doc.QuantitySpaces {
			if _, dup := k.spaces[d.Name]; dup {
				return nil, &LoadError{File: src.file, Kind: KindSpace, Name: d.Name, Err: errors.New("duplicate quantity space")}
			}
			s, err := quantity.New(d.Name, d.Levels...)
			if err != nil {
				return nil, &LoadError{File: src.file, Kind: KindSpace, Name: d.Name, Err: err}
			}
			k.spaces[d.Name] = s
		}
	}

	for _, src := range sources {
		for _, d := range src.doc.ObjectTypes {
			t, err := k.buildType(d)
			if err != nil {
				return nil, &LoadError{File: src.file, Kind: KindObjectType, Name: d.Name, Err: err}
			}
			if _, dup := k.types[t.Key()]; dup {
				return nil, &LoadError{File: src.file, Kind: KindObjectType, Name: t.Key(), Err: errors.New("duplicate object type")}
			}
			k.types[t.Key()] = t
			k.byName[t.Name] = append(k.byName[t.Name], t)
			for _, c := range t.Constraints {
				k.constraints[actionKey{t.Name, c.Name}] = c
			}
		}
	}

	for _, src := range sources {
		for _, d := range src.doc.Actions {
			a, err := k.buildAction(d)
			if err != nil {
				return nil, &LoadError{File: src.file, Kind: KindAction, Name: d.Name, Err: err}
			}
			key := actionKey{a.ObjectType, a.Name}
			if _, dup := k.actions[key]; dup {
				return nil, &LoadError{File: src.file, Kind: KindAction, Name: d.Name, Err: fmt.Errorf("duplicate action for %s", a.ObjectType)}
			}
			k.actions[key] = a
		}
	}

	for _, src := range sources {
		for _, d := range src.doc.Scenarios {
			s, err := k.buildScenario(d)
			if err != nil {
				return nil, &LoadError{File: src.file, Kind: KindScenario, Name: d.Name, Err: err}
			}
			if _, dup := k.scenarios[s.Name]; dup {
				return nil, &LoadError{File: src.file, Kind: KindScenario, Name: d.Name, Err: errors.New("duplicate scenario")}
			}
			k.scenarios[s.Name] = s
		}
	}
	return k, nil
}

func (k *KnowledgeBase) buildSpecs(ds []attributeDTO) ([]*attribute.Spec, error) {
	specs := make([]*attribute.Spec, 0, len(ds))
	for _, d := range ds {
		space, err := k.Space(d.Space)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", d.Name, err)
		}
		mutable := true
		if d.Mutable != nil {
			mutable = *d.Mutable
		}
		specs = append(specs, &attribute.Spec{
			Name:    d.Name,
			Space:   space,
			Mutable: mutable,
			Default: d.Default,
		})
	}
	return specs, nil
}

func (k *KnowledgeBase) buildType(d objectTypeDTO) (*object.Type, error) {
	t := &object.Type{Name: d.Name, Version: d.Version}
	for _, pd := range d.Parts {
		specs, err := k.buildSpecs(pd.Attributes)
		if err != nil {
			return nil, fmt.Errorf("part %q: %w", pd.Name, err)
		}
		t.Parts = append(t.Parts, object.Part{Name: pd.Name, Attributes: specs})
	}
	globals, err := k.buildSpecs(d.GlobalAttributes)
	if err != nil {
		return nil, err
	}
	t.Globals = globals

	for _, cd := range d.Constraints {
		dep := constraint.Dependency{Name: cd.Name}
		if dep.Condition, err = buildCondition(cd.If); err != nil {
			return nil, fmt.Errorf("constraint %q: if: %w", cd.Name, err)
		}
		if dep.Requires, err = buildCondition(cd.Requires); err != nil {
			return nil, fmt.Errorf("constraint %q: requires: %w", cd.Name, err)
		}
		for _, corr := range cd.Corrections {
			target, err := attribute.ParsePath(corr.Target)
			if err != nil {
				return nil, fmt.Errorf("constraint %q: correction: %w", cd.Name, err)
			}
			dep.Corrections = append(dep.Corrections, constraint.Correction{Target: target, Value: corr.Value})
		}
		t.Constraints = append(t.Constraints, dep)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	for _, c := range t.Constraints {
		if err := checkLevels(t, c.Condition); err != nil {
			return nil, fmt.Errorf("constraint %q: %w", c.Name, err)
		}
		if err := checkLevels(t, c.Requires); err != nil {
			return nil, fmt.Errorf("constraint %q: %w", c.Name, err)
		}
	}
	return t, nil
}

// checkLevels rejects leaves comparing against levels outside the target's
// space, which would otherwise only fail during evaluation.
func checkLevels(t *object.Type, c condition.Condition) error {
	for _, leaf := range c.Leaves() {
		spec, err := t.Spec(leaf.Target)
		if err != nil {
			return err
		}
		for _, v := range leaf.Values {
			if !spec.Space.Contains(v) {
				return fmt.Errorf("%s: %q in %s: %w", leaf.Target, v, spec.Space, condition.ErrUnknownLevel)
			}
		}
	}
	return nil
}

func (k *KnowledgeBase) buildAction(d actionDTO) (*transition.Action, error) {
	t, err := k.ObjectType(d.ObjectType)
	if err != nil {
		return nil, err
	}
	a := &transition.Action{
		Name:       d.Name,
		ObjectType: t.Name,
		Parameters: d.Parameters,
	}
	if d.Preconditions != nil {
		c, err := buildCondition(d.Preconditions)
		if err != nil {
			return nil, fmt.Errorf("preconditions: %w", err)
		}
		a.Preconditions = &c
	}
	for i, ed := range d.Effects {
		target, err := attribute.ParsePath(ed.Target)
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		dir, err := quantity.ParseDirection(ed.Direction)
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		e := transition.Effect{
			Kind:      transition.EffectKind(ed.Kind),
			Target:    target,
			Value:     ed.Value,
			Direction: dir,
		}
		if ed.When != nil {
			c, err := buildCondition(ed.When)
			if err != nil {
				return nil, fmt.Errorf("effect %d: when: %w", i, err)
			}
			e.When = &c
		}
		a.Effects = append(a.Effects, e)
	}
	if err := a.Validate(t); err != nil {
		return nil, err
	}
	return a, nil
}

func (k *KnowledgeBase) buildScenario(d scenarioDTO) (*ScenarioSpec, error) {
	t, err := k.ObjectType(d.ObjectType)
	if err != nil {
		return nil, err
	}
	s := &ScenarioSpec{
		Name:       d.Name,
		ObjectType: t.Key(),
		Initial:    make(map[attribute.Path]attribute.Value, len(d.Initial)),
		Steps:      d.Steps,
	}
	for raw, v := range d.Initial {
		p, err := attribute.ParsePath(raw)
		if err != nil {
			return nil, fmt.Errorf("initial: %w", err)
		}
		if v.IsZero() {
			return nil, fmt.Errorf("initial: %s: value is required", p)
		}
		s.Initial[p] = v
	}
	for i, step := range s.Steps {
		if step.Action == "" {
			return nil, fmt.Errorf("step %d: action is required", i+1)
		}
		if _, err := k.Action(t.Name, step.Action); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	// Instantiating once surfaces unknown paths, bad levels and
	// construction-time constraint violations at load time.
	if _, err := k.instantiate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// buildCondition converts a condition DTO into a validated condition tree.
func buildCondition(d *conditionDTO) (condition.Condition, error) {
	if d == nil {
		return condition.Condition{}, errors.New("condition is empty")
	}
	forms := 0
	if d.Attr != "" {
		forms++
	}
	if d.And != nil {
		forms++
	}
	if d.Or != nil {
		forms++
	}
	if d.Not != nil {
		forms++
	}
	if forms != 1 {
		return condition.Condition{}, errors.New("condition needs exactly one of attr, and, or, not")
	}

	var c condition.Condition
	switch {
	case d.Attr != "":
		target, err := attribute.ParsePath(d.Attr)
		if err != nil {
			return condition.Condition{}, err
		}
		op, err := condition.ParseOperator(d.Op)
		if err != nil {
			return condition.Condition{}, err
		}
		values := d.Values
		if d.Value != "" {
			values = append([]string{d.Value}, values...)
		}
		c = condition.Attr(target, op, values...)
	case d.Not != nil:
		child, err := buildCondition(d.Not)
		if err != nil {
			return condition.Condition{}, err
		}
		c = condition.Not(child)
	default:
		list, build := d.And, condition.And
		if d.Or != nil {
			list, build = d.Or, condition.Or
		}
		children := make([]condition.Condition, 0, len(list))
		for i := range list {
			child, err := buildCondition(&list[i])
			if err != nil {
				return condition.Condition{}, err
			}
			children = append(children, child)
		}
		c = build(children...)
	}
	if err := c.Validate(); err != nil {
		return condition.Condition{}, err
	}
	return c, nil
}
