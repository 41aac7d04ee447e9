package gen

// DeleteFromSliceUnordered removes element i by swapping the last element into its place
func DeleteFromSliceUnordered[T any](slice []T, i int) []T {
	slice[i] = slice[len(slice)-1]
	return slice[:len(slice)-1]
}

// DeleteFirst removes the first occurrence of 'item', preserving order
func DeleteFirst[T comparable](slice []T, item T) []T {
	for i, v := range slice {
		if v == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}

// IndexOf returns the index of the first occurrence of 'item', or -1
func IndexOf[T comparable](slice []T, item T) int {
	for i, v := range slice {
		if v == item {
			return i
		}
	}
	return -1
}
