package gcg

// hooks: the branching-rule event surface. Host branching layers register
// BranchRule implementations on the decomposition context; the coordinator
// dispatches the per-node lifecycle events to every registered rule, in
// registration order. Rules are addressed by the index returned at
// registration, not looked up by name or identity scans.

import "github.com/pkg/errors"

// BranchRule receives the coordinator's node lifecycle events. All methods
// may return an error to abort the current operation; MasterSolved
// additionally sees the relaxation result.
type BranchRule interface {
	Name() string
	Activate(d *Decomp, node *Node) error
	Deactivate(d *Decomp, node *Node) error
	Propagate(d *Decomp, node *Node) error
	MasterSolved(d *Decomp, node *Node, res *RelaxResult) error
	DataDelete(d *Decomp, node *Node) error
}

// RegisterBranchRule adds a rule to the context and returns its index.
func (d *Decomp) RegisterBranchRule(r BranchRule) int {
	d.rules = append(d.rules, r)
	return len(d.rules) - 1
}

// BranchRuleAt returns the rule registered at index i, or nil.
func (d *Decomp) BranchRuleAt(i int) BranchRule {
	if i < 0 || i >= len(d.rules) {
		return nil
	}
	return d.rules[i]
}

// FreeNodeData dispatches DataDelete to every rule when the host discards
// a node; rules drop whatever per-node data they keep.
func (d *Decomp) FreeNodeData(node *Node) error {
	for _, r := range d.rules {
		if err := r.DataDelete(d, node); err != nil {
			return errors.Wrapf(err, "branch rule %s failed to delete node data", r.Name())
		}
	}
	return nil
}

func (d *Decomp) activateRules(node *Node) error {
	for _, r := range d.rules {
		if err := r.Activate(d, node); err != nil {
			return errors.Wrapf(err, "branch rule %s failed to activate", r.Name())
		}
	}
	return nil
}

func (d *Decomp) deactivateRules(node *Node) {
	// deactivation runs on every exit path; failures are logged, not raised
	for _, r := range d.rules {
		if err := r.Deactivate(d, node); err != nil {
			d.Log.WithField("rule", r.Name()).WithError(err).Warn("branch rule failed to deactivate")
		}
	}
}

func (d *Decomp) propagateRules(node *Node) error {
	for _, r := range d.rules {
		if err := r.Propagate(d, node); err != nil {
			return errors.Wrapf(err, "branch rule %s failed to propagate", r.Name())
		}
	}
	return nil
}

func (d *Decomp) masterSolvedRules(node *Node, res *RelaxResult) error {
	for _, r := range d.rules {
		if err := r.MasterSolved(d, node, res); err != nil {
			return errors.Wrapf(err, "branch rule %s failed after master solve", r.Name())
		}
	}
	return nil
}
