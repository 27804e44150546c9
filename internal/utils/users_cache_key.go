package utils

import "net/url"

// BuildUsersListCacheKey expects an already normalized filter.
func BuildUsersListCacheKey(filter string) string {
	return "users:list:v1:q=" + url.QueryEscape(filter)
}
