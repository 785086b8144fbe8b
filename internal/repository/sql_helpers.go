package repository

import "strings"

// placeholders returns "?, ?, ?" with n markers for IN clauses.
func placeholders(n int) string {
    if n <= 0 {
        return ""
    }
    return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// idArgs converts ids into driver arguments, optionally prefixed by extra
// leading arguments.
func idArgs(ids []uint64, lead ...interface{}) []interface{} {
    args := make([]interface{}, 0, len(lead)+len(ids))
    args = append(args, lead...)
    for _, id := range ids {
        args = append(args, id)
    }
    return args
}

// uniqueIDs drops zero and duplicate ids while keeping the first-seen order.
func uniqueIDs(ids []uint64) []uint64 {
    seen := make(map[uint64]struct{}, len(ids))
    out := make([]uint64, 0, len(ids))
    for _, id := range ids {
        if id == 0 {
            continue
        }
        if _, ok := seen[id]; ok {
            continue
        }
        seen[id] = struct{}{}
        out = append(out, id)
    }
    return out
}
