package usecase

import "errors"

// ErrAmbiguousMatch は同点の候補が複数あり、ひとつに決められない場合に返されます。
// The candidate is reported as unresolved with reason "ambiguous"; it never
// aborts a deck.
var ErrAmbiguousMatch = errors.New("ambiguous card match")
