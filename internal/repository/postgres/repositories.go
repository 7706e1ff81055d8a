package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users            *UserRepository
	Memberships      *MembershipRepository
	Tags             *TagRepository
	BuyerAssignments *BuyerAssignmentRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool pgPool) *Repositories {
	return &Repositories{
		Users:            NewUserRepository(pool),
		Memberships:      NewMembershipRepository(pool),
		Tags:             NewTagRepository(pool),
		BuyerAssignments: NewBuyerAssignmentRepository(pool),
	}
}
