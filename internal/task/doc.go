// Package task loads task descriptors from a directory and rewrites them
// once they have fired.
//
// One *.json file is one task. Files are processed in lexicographic order of
// their names; the name without extension is the task ID used in logs and
// commit messages.
package task
